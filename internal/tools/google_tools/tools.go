package google_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/google"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/common"
)

const authOp = "google_tools.auth"

// RegisterGoogleTools registers the Google authorization tools with the MCP server
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Get OAuth URL tool
	getAuthURLTool := mcp.NewTool("google_get_auth_url",
		mcp.WithDescription("Get the OAuth URL to authorize Google Calendar and Google Tasks access"),
	)

	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler("google_get_auth_url", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAuthURL(ctx, request, sc)
		}))

	// Save authorization code tool
	saveAuthCodeTool := mcp.NewTool("google_save_auth_code",
		mcp.WithDescription("Save the OAuth authorization code to complete Google Calendar and Google Tasks authorization"),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
	)

	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler("google_save_auth_code", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSaveAuthCode(ctx, request, sc)
		}))

	authStatusTool := mcp.NewTool("google_auth_status",
		mcp.WithDescription("Show whether a Google credential is stored and when it expires"),
	)

	s.AddTool(authStatusTool, common.InstrumentedToolHandler("google_auth_status", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, sc)
		}))

	return nil
}

func handleAuthStatus(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st, err := sc.Credentials().Status(ctx)
	if err != nil {
		return common.ErrorResult("get credential status", err), nil
	}
	return common.JSONResult(st)
}

func oauthConfig(sc *server.ServerContext) (*oauth2.Config, error) {
	conf := sc.OAuthConfig()
	if conf == nil || conf.ClientID == "" || conf.ClientSecret == "" {
		return nil, apperr.Validation(authOp, "client_id",
			"no OAuth client configured, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}
	return conf, nil
}

func handleGetAuthURL(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	conf, err := oauthConfig(sc)
	if err != nil {
		return common.ErrorResult("get auth URL", err), nil
	}

	authURL := google.AuthURL(conf, uuid.NewString())

	result := fmt.Sprintf(`To authorize Google Calendar and Google Tasks access for account "%s":

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to Google Calendar and Google Tasks
4. Copy the authorization code

5. Call the google_save_auth_code tool with the code to complete authorization`, sc.Credentials().Account(), authURL)

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	authCode, err := common.RequiredString(args, "authCode")
	if err != nil {
		return common.ErrorResult("save authorization code", err), nil
	}
	conf, err := oauthConfig(sc)
	if err != nil {
		return common.ErrorResult("save authorization code", err), nil
	}

	cred, err := google.Exchange(ctx, conf, authCode)
	if err != nil {
		return common.ErrorResult("save authorization code", apperr.New(apperr.KindPermanentAuth, authOp, err)), nil
	}
	if err := sc.Credentials().Bootstrap(ctx, cred); err != nil {
		return common.ErrorResult("save authorization code", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Authorization successful for account '%s'. The credential expires at %s and is refreshed automatically.",
		sc.Credentials().Account(), cred.Expiry.Format(time.RFC3339))), nil
}
