// Package ecr supplies authorization tokens for the Amazon ECR registry of
// the configured AWS account and region.
package ecr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsecr "github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// Provider labels logs and metrics for this supplier.
const Provider = "ecr"

var (
	errLoadConfig      = errors.New("failed to load AWS configuration")
	errCallerIdentity  = errors.New("failed to determine AWS account")
	errNoRegion        = errors.New("no AWS region configured")
	errGetToken        = errors.New("failed to get ECR authorization token")
	errNoAuthData      = errors.New("ECR returned no authorization data")
	errInvalidAuthData = errors.New("invalid ECR authorization token")
)

// identityCache holds account IDs by region and access key. Caller identity
// does not change for a key pair, so entries never expire.
var identityCache = cache.New(cache.NoExpiration, 0)

// TokenAPI is the subset of the ECR client used here.
type TokenAPI interface {
	GetAuthorizationToken(
		ctx context.Context,
		params *awsecr.GetAuthorizationTokenInput,
		optFns ...func(*awsecr.Options),
	) (*awsecr.GetAuthorizationTokenOutput, error)
}

// IdentityAPI is the subset of the STS client used here.
type IdentityAPI interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// Clients groups what a supplier needs to talk to AWS.
type Clients struct {
	Region   string
	Tokens   TokenAPI
	Identity IdentityAPI
	// CacheKey identifies the credentials for the account ID cache. Empty
	// disables caching.
	CacheKey string
}

// LoadConfig loads the AWS SDK configuration. Static keys replace the default
// credential chain when accessKeyID is set; an empty region keeps the SDK default.
func LoadConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: %w", errLoadConfig, err)
	}

	return cfg, nil
}

// New builds a supplier from an SDK configuration. The AWS account is looked
// up immediately to derive the registry host.
func New(ctx context.Context, cfg aws.Config, opts ...auth.RefreshOption) (*auth.TokenSupplier, error) {
	clients := Clients{
		Region:   cfg.Region,
		Tokens:   awsecr.NewFromConfig(cfg),
		Identity: sts.NewFromConfig(cfg),
	}

	if cfg.Credentials != nil {
		creds, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errCallerIdentity, err)
		}

		clients.CacheKey = creds.AccessKeyID
	}

	return NewWithClients(ctx, clients, opts...)
}

// NewWithClients builds a supplier around the given clients.
func NewWithClients(ctx context.Context, clients Clients, opts ...auth.RefreshOption) (*auth.TokenSupplier, error) {
	if clients.Region == "" {
		return nil, errNoRegion
	}

	account, err := accountID(ctx, clients)
	if err != nil {
		return nil, err
	}

	host := RegistryHost(account, clients.Region)

	logrus.WithFields(logrus.Fields{
		"account":  account,
		"region":   clients.Region,
		"registry": host,
	}).Debug("Configured ECR registry")

	token := auth.NewRefreshingToken(Provider, refreshFrom(clients.Tokens, host), opts...)

	return auth.NewTokenSupplier(token, host), nil
}

// RegistryHost returns the private registry host of an account in region.
func RegistryHost(account, region string) string {
	host := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", account, region)
	if strings.HasPrefix(region, "cn-") {
		host += ".cn"
	}

	return host
}

func accountID(ctx context.Context, clients Clients) (string, error) {
	key := clients.Region + "/" + clients.CacheKey

	if clients.CacheKey != "" {
		if cached, found := identityCache.Get(key); found {
			return cached.(string), nil //nolint:forcetypeassert // Only account IDs are stored
		}
	}

	output, err := clients.Identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errCallerIdentity, err)
	}

	account := aws.ToString(output.Account)
	if account == "" {
		return "", fmt.Errorf("%w: empty account in caller identity", errCallerIdentity)
	}

	if clients.CacheKey != "" {
		identityCache.Set(key, account, cache.NoExpiration)
	}

	return account, nil
}

func refreshFrom(tokens TokenAPI, host string) auth.RefreshFunc {
	return func(ctx context.Context) (auth.Token, error) {
		output, err := tokens.GetAuthorizationToken(ctx, &awsecr.GetAuthorizationTokenInput{})
		if err != nil {
			return auth.Token{}, fmt.Errorf("%w: %w", errGetToken, err)
		}

		if len(output.AuthorizationData) == 0 {
			return auth.Token{}, errNoAuthData
		}

		data := output.AuthorizationData[0]

		username, password, err := DecodeAuthToken(aws.ToString(data.AuthorizationToken))
		if err != nil {
			return auth.Token{}, err
		}

		serverAddress := aws.ToString(data.ProxyEndpoint)
		if serverAddress == "" {
			serverAddress = "https://" + host
		}

		return auth.Token{
			Auth: types.RegistryAuth{
				ServerAddress: serverAddress,
				Username:      username,
				Password:      password,
			},
			Expiry: aws.ToTime(data.ExpiresAt),
		}, nil
	}
}

// DecodeAuthToken splits an ECR authorization token, base64 "user:password",
// into its parts.
func DecodeAuthToken(token string) (string, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidAuthData, err)
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", fmt.Errorf("%w: missing separator", errInvalidAuthData)
	}

	return username, password, nil
}
