// Package boot provides shared process bootstrap for the binaries: AWS
// config, optional S3/DynamoDB/EventBridge clients, secret loading from SSM,
// and startup logging.
//
// Every AWS resource is optional. An empty bucket, table or bus name
// disables the matching feature and the process runs without AWS access.
package boot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/logging"
	"github.com/fpang/gemini-video-bot/internal/store"
)

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// InitS3Optional creates an S3 client when bucket is set.
// Returns nil (with a warning) if not configured.
func InitS3Optional(cfg aws.Config, bucket string) *s3.Client {
	if bucket == "" {
		log.Warn().Msg("Archive bucket not set, S3 archive disabled")
		return nil
	}
	return s3.NewFromConfig(cfg)
}

// InitDynamoOptional creates a DynamoDB job store if tableName is set.
// Returns nil (with a warning) if not configured.
func InitDynamoOptional(cfg aws.Config, tableName string) *store.DynamoStore {
	if tableName == "" {
		log.Warn().Msg("Jobs table not set, job records kept in memory")
		return nil
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBridgeOptional creates an EventBridge client if busName is set.
func InitEventBridgeOptional(cfg aws.Config, busName string) *eventbridge.Client {
	if busName == "" {
		return nil
	}
	return eventbridge.NewFromConfig(cfg)
}

// ParameterGetter is satisfied by *ssm.Client.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecret returns the value of envVar if set, otherwise the decrypted
// SSM parameter paramName. A nil client with no env value is an error.
func LoadSecret(ctx context.Context, client ParameterGetter, envVar, paramName string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if client == nil {
		return "", fmt.Errorf("%s is not set and SSM is unavailable", envVar)
	}

	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read %s from SSM parameter %s: %w", envVar, paramName, err)
	}
	if result.Parameter == nil || strings.TrimSpace(aws.ToString(result.Parameter.Value)) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return strings.TrimSpace(aws.ToString(result.Parameter.Value)), nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
