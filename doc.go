// Package claudeagent provides a Go SDK for interacting with the Claude CLI agent.
//
// This SDK enables Go applications to programmatically communicate with Claude
// through the official Claude CLI tool. It supports both one-shot queries and
// interactive multi-turn conversations.
//
// # Basic Usage
//
// For simple, one-shot queries, use the Query function:
//
//	ctx := context.Background()
//	messages, err := claudeagent.Query(ctx, "What is 2+2?",
//	    claudeagent.WithPermissionMode("acceptEdits"),
//	    claudeagent.WithMaxTurns(1),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for msg := range messages {
//	    switch m := msg.(type) {
//	    case *claudeagent.AssistantMessage:
//	        for _, block := range m.Content {
//	            if text, ok := block.(*claudeagent.TextBlock); ok {
//	                fmt.Println(text.Text)
//	            }
//	        }
//	    case *claudeagent.ResultMessage:
//	        fmt.Printf("Completed in %dms\n", m.DurationMs)
//	    }
//	}
//
// # Interactive Sessions
//
// For multi-turn conversations, use NewClient or the WithClient helper:
//
//	// Using WithClient for automatic lifecycle management
//	err := claudeagent.WithClient(ctx, func(c claudeagent.Client) error {
//	    if err := c.Query(ctx, "Hello Claude"); err != nil {
//	        return err
//	    }
//	    for msg, err := range c.ReceiveResponse(ctx) {
//	        if err != nil {
//	            return err
//	        }
//	        // process message...
//	    }
//	    return nil
//	},
//	    claudeagent.WithLogger(slog.Default()),
//	    claudeagent.WithPermissionMode("acceptEdits"),
//	)
//
//	// Or using NewClient directly for more control
//	client := claudeagent.NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    claudeagent.WithLogger(slog.Default()),
//	    claudeagent.WithPermissionMode("acceptEdits"),
//	)
//
// # Logging
//
// For detailed operation tracking, use WithLogger:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	messages, err := claudeagent.Query(ctx, "Hello Claude",
//	    claudeagent.WithLogger(logger),
//	)
//
// # Error Handling
//
// The SDK provides typed errors for different failure scenarios:
//
//	messages, err := claudeagent.Query(ctx, prompt, claudeagent.WithPermissionMode("acceptEdits"))
//	if err != nil {
//	    if cliErr, ok := errors.AsType[*claudeagent.CLINotFoundError](err); ok {
//	        log.Fatalf("Claude CLI not installed, searched: %v", cliErr.SearchedPaths)
//	    }
//	    if procErr, ok := errors.AsType[*claudeagent.ProcessError](err); ok {
//	        log.Fatalf("CLI process failed with exit code %d: %s", procErr.ExitCode, procErr.Stderr)
//	    }
//	    log.Fatal(err)
//	}
//
// Failed assistant turns surface as typed API errors. Match a concrete
// variant such as *AuthenticationError or *RateLimitError, or match
// *APIError to handle any of them:
//
//	for msg, err := range claudeagent.Query(ctx, prompt) {
//	    if apiErr, ok := errors.AsType[*claudeagent.APIError](err); ok {
//	        log.Fatalf("API error %s from model %s: %s", apiErr.Code, apiErr.Model, apiErr.Message)
//	    }
//	    // ...
//	}
//
// # Requirements
//
// This SDK requires the Claude CLI to be installed and available in your system PATH.
// You can specify a custom CLI path using the WithCliPath option.
package claudeagent
