package commoncrawl

import (
	"hash/fnv"
	"os"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoadFileLines reads a file into a slice of strings
// Each line has whitespace trimmed.
//
// * filename - Name of the file that should be loaded
func LoadFileLines(filename string) ([]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); i++ {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, nil
}

// WriteFileLines writes a slice of strings to a file
// Each string is written to the file, followed by a newline character.
//
// * filename - Name of the destination file
// * lines - Slice of strings that should be written
func WriteFileLines(filename string, lines []string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := file.WriteString(line + "\n"); err != nil {
			file.Close()
			return err
		}
	}
	return file.Close()
}

// CreateFileIfAbsent creates the specified file if it
// does not already exist.
//
// * filename - Name of the file that should be created
func CreateFileIfAbsent(filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		file.Close()
	}
	return nil
}

// outputMapToSlice flattens one output set of the store, sorted by key
func outputMapToSlice(outputItems map[string]OutputItem) []OutputItem {
	result := make([]OutputItem, 0, len(outputItems))
	for _, outputItem := range outputItems {
		result = append(result, outputItem)
	}
	sort.Sort(OutputItems(result))
	return result
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// CatchFatalError returns a function that can be used
// to report panics. Once the error is reported, the process
// exits abnormally.
//
// Usage:
// ```
// defer commoncrawl.CatchFatalError(logger)()
// ```
func CatchFatalError(logger logrus.FieldLogger) func() {
	return func() {
		err := recover()
		if err != nil {
			stack := debug.Stack()
			logger.Fatalf("Fatal error in processing: %v\n%v", err, string(stack))
		}
	}
}
