package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stefando/weddingPhotos/internal/auth"
	"github.com/stefando/weddingPhotos/internal/config"
	"github.com/stefando/weddingPhotos/internal/logging"
)

// authorizer verifies the gateway JWT in front of the photo functions when
// they are deployed behind API Gateway.
type authorizer struct {
	secret []byte
	logger *slog.Logger
}

func (a *authorizer) handler(ctx context.Context, event events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	token, err := auth.BearerToken(event.AuthorizationToken)
	if err == nil {
		var role string
		role, err = auth.VerifyGatewayToken(token, a.secret)
		if err == nil {
			a.logger.DebugContext(ctx, "authorization granted", slog.String("role", role))
			return events.APIGatewayCustomAuthorizerResponse{
				PrincipalID:    role,
				PolicyDocument: generatePolicy("Allow", event.MethodArn),
				Context: map[string]interface{}{
					"role": role,
				},
			}, nil
		}
	}

	a.logger.WarnContext(ctx, "authorization denied", slog.Any("error", err))
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID:    "unauthorized",
		PolicyDocument: generatePolicy("Deny", event.MethodArn),
	}, nil
}

func generatePolicy(effect, resource string) events.APIGatewayCustomAuthorizerPolicy {
	return events.APIGatewayCustomAuthorizerPolicy{
		Version: "2012-10-17",
		Statement: []events.IAMPolicyStatement{{
			Action:   []string{"execute-api:Invoke"},
			Effect:   effect,
			Resource: []string{resource},
		}},
	}
}

func main() {
	cfg := config.Load(config.NewViper())
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	if cfg.JWTSecret == "" {
		logger.Error("authorizer needs a JWT secret", slog.String("key", config.KeyJWTSecret))
		os.Exit(1)
	}

	a := &authorizer{secret: []byte(cfg.JWTSecret), logger: logger}
	lambda.Start(a.handler)
}
