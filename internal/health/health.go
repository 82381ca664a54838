// Package health backs the doctor command: it checks that the vault is
// usable and the model endpoint answers.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jeanpaul/memoria/internal/provider"
	"github.com/jeanpaul/memoria/internal/vault"
)

type Status struct {
	Name    string
	OK      bool
	Detail  string
	Latency time.Duration
}

// Run performs every check. It never returns early; each failure is
// reported in its own Status.
func Run(ctx context.Context, v *vault.Vault, prov provider.Provider) []Status {
	return []Status{
		CheckVault(v),
		CheckMemory(v),
		CheckEndpoint(ctx, prov),
	}
}

// CheckVault verifies the memory folder can be written.
func CheckVault(v *vault.Vault) Status {
	s := Status{Name: "vault"}
	dir := v.MemoryDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.Detail = fmt.Sprintf("cannot create %s: %s", dir, friendlyError(err))
		return s
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		s.Detail = fmt.Sprintf("%s is not writable: %s", dir, friendlyError(err))
		return s
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	s.OK = true
	s.Detail = dir
	return s
}

// CheckMemory reports whether the memory structure has been seeded.
func CheckMemory(v *vault.Vault) Status {
	s := Status{Name: "memory"}
	if !v.Exists() {
		s.Detail = "not initialized (it is created on first chat)"
		s.OK = true
		return s
	}
	core, err := v.ReadCore()
	if err != nil {
		s.Detail = err.Error()
		return s
	}
	notes, err := v.ListNotes("")
	if err != nil {
		s.Detail = err.Error()
		return s
	}
	s.OK = true
	s.Detail = fmt.Sprintf("core memory ~%d/%d tokens, %d files under %s/",
		vault.EstimateTokens(core), v.CoreMaxTokens(), len(notes), filepath.Base(v.MemoryDir()))
	return s
}

// CheckEndpoint lists the provider's models and confirms the configured
// one is among them. Endpoints that list nothing pass.
func CheckEndpoint(ctx context.Context, prov provider.Provider) Status {
	s := Status{Name: "model"}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	models, err := prov.Models(ctx)
	s.Latency = time.Since(start)
	if err != nil {
		s.Detail = fmt.Sprintf("cannot reach %s: %s", prov.Name(), friendlyError(err))
		return s
	}
	want := prov.ModelName()
	if len(models) > 0 && !slices.Contains(models, want) {
		s.Detail = fmt.Sprintf("model %q not found; available: %s", want, strings.Join(models, ", "))
		return s
	}
	s.OK = true
	s.Detail = fmt.Sprintf("%s reachable, model %q", prov.Name(), want)
	return s
}

func friendlyError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "connection refused") {
		return "connection refused (is the server running?)"
	}
	if strings.Contains(msg, "no such host") {
		return "host not found (check the URL)"
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "connection timed out (the model may still be loading)"
	}
	if os.IsPermission(err) {
		return "permission denied"
	}
	return msg
}
