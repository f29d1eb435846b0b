package completion

import (
	"context"
	"log/slog"

	"github.com/pfahlr/llm-writer/internal/mcp"
)

// CollectCatalog queries every configured server for its tool listing and
// returns server id → tools. A server whose listing fails is recorded with
// an empty list — one dead tool server must not abort the completion — and
// the failure is logged. The collector never retries and never caches; it
// runs fresh at the start of each completion that offers tools.
func CollectCatalog(ctx context.Context, exec mcp.Executor, serverIDs []string) map[string][]mcp.ToolInfo {
	catalog := make(map[string][]mcp.ToolInfo, len(serverIDs))
	for _, id := range serverIDs {
		tools, err := exec.ListTools(ctx, id)
		if err != nil {
			slog.Warn("tool catalog listing failed; offering no tools from this server",
				"server", id,
				"err", err,
			)
			catalog[id] = nil
			continue
		}
		catalog[id] = tools
	}
	return catalog
}
