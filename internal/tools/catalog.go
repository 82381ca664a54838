package tools

import (
	"log/slog"

	"github.com/jeanpaul/memoria/internal/vault"
)

// ChatTools is the full set offered during conversation, in catalog order.
var ChatTools = []string{
	"read_core_memory",
	"update_core_memory",
	"read_memory",
	"write_memory",
	"read_context",
	"update_context",
	"archive_memory",
	"read_archive",
	"search_vault",
	"create_memory_note",
	"read_memory_note",
	"update_memory_note",
	"list_memory_notes",
	"delete_memory_note",
	"update_soul",
	"update_observations",
}

// ConsolidationTools is the memory-only subset used when consolidating at
// the end of a session.
var ConsolidationTools = []string{
	"read_core_memory",
	"update_core_memory",
	"read_memory",
	"write_memory",
	"read_context",
	"update_context",
	"archive_memory",
	"read_archive",
	"update_soul",
}

// RegisterMemoryTools adds every vault-backed tool to reg.
func RegisterMemoryTools(reg *Registry, v *vault.Vault) {
	for _, t := range memoryTools(v) {
		reg.Register(t)
	}
	for _, t := range noteTools(v) {
		reg.Register(t)
	}
}

// NewMemoryRegistry is a registry with all vault tools registered.
func NewMemoryRegistry(v *vault.Vault, logger *slog.Logger) *Registry {
	reg := NewRegistry(logger)
	RegisterMemoryTools(reg, v)
	return reg
}
