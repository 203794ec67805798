package cognito

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// ErrCognitoThrottled marks errors returned when Cognito throttles requests.
var ErrCognitoThrottled = errors.New("cognito throttling")

// ErrCognitoNotAuthorized marks errors returned when Cognito rejects credentials.
var ErrCognitoNotAuthorized = errors.New("cognito not authorized")

// ErrCognitoExpiredCode marks errors returned when Cognito sees expired codes.
var ErrCognitoExpiredCode = errors.New("cognito code expired")

// ErrCognitoCodeMismatch marks errors returned when Cognito sees mismatched codes.
var ErrCognitoCodeMismatch = errors.New("cognito code mismatch")

// ErrCognitoUserExists marks errors returned when trying to create an existing user.
var ErrCognitoUserExists = errors.New("cognito user already exists")

// ErrCognitoUserNotFound marks errors returned for unknown usernames.
var ErrCognitoUserNotFound = errors.New("cognito user not found")

// API is the subset of the Cognito identity provider used for SMS codes.
type API interface {
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, opts ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, in *cognitoidentityprovider.RespondToAuthChallengeInput, opts ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.RespondToAuthChallengeOutput, error)
	AdminCreateUser(ctx context.Context, in *cognitoidentityprovider.AdminCreateUserInput, opts ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminCreateUserOutput, error)
}

type CognitoClient struct {
	client   API
	poolID   string
	clientID string
}

// NewClient creates a new Cognito client from pool ID and client ID.
// The region is extracted from the pool ID (format: "region_poolid").
func NewClient(ctx context.Context, poolID, clientID string) (*CognitoClient, error) {
	region, err := regionFromPoolID(poolID)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewWithAPI(cognitoidentityprovider.NewFromConfig(awsCfg), poolID, clientID), nil
}

// NewWithAPI wraps an existing identity provider client.
func NewWithAPI(api API, poolID, clientID string) *CognitoClient {
	return &CognitoClient{client: api, poolID: poolID, clientID: clientID}
}

// InitiateSMSOTP starts the SMS_OTP authentication flow for a phone number
// username and returns the session to answer the challenge with.
func (c *CognitoClient) InitiateSMSOTP(ctx context.Context, phone string) (string, error) {
	out, err := c.client.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"USERNAME":            phone,
			"PREFERRED_CHALLENGE": "SMS_OTP",
		},
	})
	if err != nil {
		return "", mapCognitoError(err)
	}
	if out.ChallengeName != types.ChallengeNameTypeSmsOtp {
		return "", fmt.Errorf("unexpected cognito challenge %q", out.ChallengeName)
	}
	return aws.ToString(out.Session), nil
}

// VerifySMSOTP answers the SMS_OTP challenge with the code the user received.
func (c *CognitoClient) VerifySMSOTP(ctx context.Context, session, phone, code string) error {
	out, err := c.client.RespondToAuthChallenge(ctx, &cognitoidentityprovider.RespondToAuthChallengeInput{
		ChallengeName: types.ChallengeNameTypeSmsOtp,
		ClientId:      aws.String(c.clientID),
		Session:       aws.String(session),
		ChallengeResponses: map[string]string{
			"USERNAME":     phone,
			"SMS_OTP_CODE": code,
		},
	})
	if err != nil {
		return mapCognitoError(err)
	}
	if out.AuthenticationResult == nil {
		// Cognito re-issues the challenge for a wrong code while attempts remain.
		return ErrCognitoCodeMismatch
	}
	return nil
}

// CreateUser creates a pool user keyed by phone number. No welcome message is
// sent.
func (c *CognitoClient) CreateUser(ctx context.Context, phone string) error {
	_, err := c.client.AdminCreateUser(ctx, &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:    aws.String(c.poolID),
		Username:      aws.String(phone),
		MessageAction: types.MessageActionTypeSuppress,
		UserAttributes: []types.AttributeType{
			{Name: aws.String("phone_number"), Value: aws.String(phone)},
			{Name: aws.String("phone_number_verified"), Value: aws.String("true")},
		},
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func mapCognitoError(err error) error {
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %v", ErrCognitoThrottled, err)
	}
	var notAuthorized *types.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		return fmt.Errorf("%w: %v", ErrCognitoNotAuthorized, err)
	}
	var expired *types.ExpiredCodeException
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %v", ErrCognitoExpiredCode, err)
	}
	var mismatch *types.CodeMismatchException
	if errors.As(err, &mismatch) {
		return fmt.Errorf("%w: %v", ErrCognitoCodeMismatch, err)
	}
	var userExists *types.UsernameExistsException
	if errors.As(err, &userExists) {
		return fmt.Errorf("%w: %v", ErrCognitoUserExists, err)
	}
	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrCognitoUserNotFound, err)
	}
	return err
}

func regionFromPoolID(poolID string) (string, error) {
	parts := strings.SplitN(poolID, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid cognito pool id: %q", poolID)
	}
	return parts[0], nil
}
