package commoncrawl

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// NewAWSSession creates a session for the configured region. Static credentials are
// used when both keys are set, otherwise the default credential chain applies.
func NewAWSSession(conf AWSConfiguration) (*session.Session, error) {
	awsConfig := aws.NewConfig().WithRegion(conf.Region)
	if conf.AccessKeyID != "" && conf.SecretAccessKey != "" {
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(conf.AccessKeyID, conf.SecretAccessKey, ""))
	}
	return session.NewSession(awsConfig)
}

// NewS3Client returns an S3 client, pointed at S3Endpoint when one is configured
func NewS3Client(sess *session.Session, conf AWSConfiguration) *s3.S3 {
	awsConfig := aws.NewConfig()
	if conf.S3Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(conf.S3Endpoint).WithS3ForcePathStyle(true)
	}
	return s3.New(sess, awsConfig)
}

// NewSQSClient returns an SQS client, pointed at SQSEndpoint when one is configured
func NewSQSClient(sess *session.Session, conf AWSConfiguration) *sqs.SQS {
	awsConfig := aws.NewConfig()
	if conf.SQSEndpoint != "" {
		awsConfig = awsConfig.WithEndpoint(conf.SQSEndpoint)
	}
	return sqs.New(sess, awsConfig)
}
