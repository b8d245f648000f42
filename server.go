package oauth

import (
	"fmt"
	"log/slog"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/server"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// ServerOptions are the optional collaborators of NewServer.
type ServerOptions struct {
	// Clients seeds the registry. Nil registers server.DefaultClient().
	Clients []*server.Client

	// Encryptor seals records at rest. Nil stores plaintext JSON.
	Encryptor *security.Encryptor

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
}

// NewServer wires a server.Server over kv. It is a convenience for the
// common setup; use server.New directly for full control.
func NewServer(kv storage.KV, config *server.Config, logger *slog.Logger, opts ServerOptions) (*server.Server, error) {
	if kv == nil {
		return nil, fmt.Errorf("key-value store is required")
	}

	recordOpts := []storage.RecordsOption{storage.WithInstrumentation(opts.Instrumentation)}
	if opts.Encryptor != nil {
		recordOpts = append(recordOpts, storage.WithEncryptor(opts.Encryptor))
	}
	records := storage.NewRecords(kv, recordOpts...)

	clients := opts.Clients
	if clients == nil {
		clients = []*server.Client{server.DefaultClient()}
	}

	srv, err := server.New(server.NewRegistry(clients...), records, config, logger)
	if err != nil {
		return nil, err
	}

	srv.SetAuditor(opts.Auditor)
	if err := srv.SetInstrumentation(opts.Instrumentation); err != nil {
		return nil, fmt.Errorf("failed to register instrumentation: %w", err)
	}

	return srv, nil
}
