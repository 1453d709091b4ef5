package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/sebastian-mora/sshtoken/internal/logger"
)

// APIGatewayHandler handles API Gateway V2 HTTP requests and delegates to the token service
type APIGatewayHandler struct {
	tokens handler.TokenService
	keys   handler.Keyhandler
}

// NewAPIGatewayHandler creates a new APIGatewayHandler
func NewAPIGatewayHandler(tokens handler.TokenService, keys handler.Keyhandler) *APIGatewayHandler {
	return &APIGatewayHandler{
		tokens: tokens,
		keys:   keys,
	}
}

// Handle processes an API Gateway V2 HTTP request
func (h *APIGatewayHandler) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {

	// Add context about the Lambda invocation
	lambdaCtx, ok := lambdacontext.FromContext(ctx)
	if ok {
		ctx = context.WithValue(ctx, logger.AWSRequestIDKey, lambdaCtx.AwsRequestID)
		ctx = context.WithValue(ctx, logger.FunctionARNKey, lambdaCtx.InvokedFunctionArn)
	}

	// Add API Gateway request ID
	ctx = context.WithValue(ctx, logger.RequestIDKey, event.RequestContext.RequestID)
	ctx = context.WithValue(ctx, logger.SourceIPKey, event.RequestContext.HTTP.SourceIP)

	method := event.RequestContext.HTTP.Method
	path := strings.TrimSuffix(event.RawPath, "/")

	switch {
	case method == http.MethodGet && path == "/token":
		return h.issueToken(ctx, event)
	case method == http.MethodPost && path == "/token/signing":
		return h.validateToken(ctx, event)
	case method == http.MethodGet && path == "/ca.pub":
		return h.caPublicKey(ctx)
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound, Body: "Not found"}, nil
	}
}

func (h *APIGatewayHandler) issueToken(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := h.tokens.IssueToken(ctx, &handler.TokenRequest{
		Token:     bearerToken(event),
		SourceIP:  event.RequestContext.HTTP.SourceIP,
		UserAgent: event.RequestContext.HTTP.UserAgent,
	})
	if err != nil {
		return errorResponse(ctx, err), nil
	}
	return jsonResponse(ctx, http.StatusOK, resp), nil
}

func (h *APIGatewayHandler) validateToken(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var req handler.ValidationRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errorResponse(ctx, handler.ErrInvalidRequest), nil
	}
	req.Token = bearerToken(event)

	resp, err := h.tokens.ValidateToken(ctx, &req)
	if err != nil {
		return errorResponse(ctx, err), nil
	}
	return jsonResponse(ctx, resp.Code, resp), nil
}

func (h *APIGatewayHandler) caPublicKey(ctx context.Context) (events.APIGatewayV2HTTPResponse, error) {
	pub, err := h.keys.PublicKey(ctx)
	if err != nil {
		return errorResponse(ctx, err), nil
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Body:       pub,
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}, nil
}

// bearerToken extracts the token from the authorization header, or "" when absent.
func bearerToken(event events.APIGatewayV2HTTPRequest) string {
	const prefix = "Bearer "
	authHeader := event.Headers["authorization"]
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

func jsonResponse(ctx context.Context, status int, v any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(ctx, err)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// errorResponse maps errors to status codes, hiding internal details from the caller.
func errorResponse(ctx context.Context, err error) events.APIGatewayV2HTTPResponse {
	logger.Error(ctx, "request failed", "error", err)
	status, body := handler.ErrorStatus(err)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       body,
	}
}
