package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/civicportal/portal-sync/internal/config"
)

const (
	awsRegionDetect = "detect"
	imdsTimeout     = 2 * time.Second
)

// awsRegion resolves the AWS region from the configuration, detecting
// it from IMDS if the region is set to "detect".
func awsRegion(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	region := cfg.DynamicAuth.AWSRDSIAM.Region
	if region == "" {
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	}
	if region != awsRegionDetect {
		return region, nil
	}

	client := imds.New(imds.Options{
		HTTPClient: &http.Client{Timeout: imdsTimeout},
	})
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get region from IMDS: %w", err)
	}
	return out.Region, nil
}

// awsRDSToken generates an AWS RDS IAM authentication token for the configured user.
// Tokens are valid for 15 minutes and are used as the connection password.
func awsRDSToken(ctx context.Context, cfg *config.DatabaseConfig, region string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	token, err := auth.BuildAuthToken(ctx, endpoint, region, cfg.User, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token: %w", err)
	}
	return token, nil
}

// awsRDSBeforeConnect returns a pgx hook that sets a fresh IAM token as the
// password of every new connection.
func awsRDSBeforeConnect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
) (func(context.Context, *pgx.ConnConfig) error, error) {
	region, err := awsRegion(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, connConfig *pgx.ConnConfig) error {
		token, err := awsRDSToken(ctx, cfg, region)
		if err != nil {
			return err
		}
		connConfig.Password = token
		return nil
	}, nil
}
