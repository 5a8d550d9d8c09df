package commoncrawl

import (
	"bytes"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/jonboulle/clockwork"
)

// S3OutputFileWriter implements the OutputFileWriter interface.
// Writes files to an S3 bucket
type S3OutputFileWriter struct {
	s3BucketName string
	s3Client     s3iface.S3API
	clock        clockwork.Clock
}

// NewS3OutputFileWriter returns a new instance of S3OutputFileWriter
//
// * s3Client - S3 client used for uploads
// * s3BucketName - S3 output bucket name
// * clock - Used for exponential backoff
func NewS3OutputFileWriter(s3Client s3iface.S3API, s3BucketName string, clock clockwork.Clock) *S3OutputFileWriter {
	fileWriter := new(S3OutputFileWriter)
	fileWriter.s3Client = s3Client
	fileWriter.s3BucketName = s3BucketName
	fileWriter.clock = clock
	return fileWriter
}

// WriteOutputFile uploads the file, retrying with a backoff
func (fileWriter *S3OutputFileWriter) WriteOutputFile(filepath string, data []byte) error {
	return WithRetries(fileWriter.clock, 3, func() error {
		input := s3.PutObjectInput{
			Bucket:          aws.String(fileWriter.s3BucketName),
			Key:             aws.String(filepath),
			Body:            bytes.NewReader(data),
			ContentType:     aws.String("text/plain"),
			ContentEncoding: aws.String("gzip"),
		}
		_, err := fileWriter.s3Client.PutObject(&input)
		return err
	})
}
