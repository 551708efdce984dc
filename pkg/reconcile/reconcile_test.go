package reconcile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depsync/pkg/classify"
	"github.com/matzehuels/depsync/pkg/errors"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/scan"
)

// fakeResolver serves canned versions and records every lookup.
type fakeResolver struct {
	mu       sync.Mutex
	versions map[string]string
	errs     map[string]error
	calls    []string
}

func (f *fakeResolver) LatestVersion(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, manifest.Normalize(name))
	f.mu.Unlock()
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	if v, ok := f.versions[name]; ok {
		return v, nil
	}
	return "", errors.New(errors.ErrCodeCrateNotFound, "crate %q not found", name)
}

func (f *fakeResolver) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == manifest.Normalize(name) {
			return true
		}
	}
	return false
}

func parseManifest(t *testing.T, src string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// loadConfig round-trips the policy through the loader so the normalized
// lookup sets are built, the same way production code obtains a Config.
func loadConfig(t *testing.T, cfg *classify.Config) *classify.Config {
	t.Helper()
	if cfg == nil {
		cfg = &classify.Config{}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), classify.DefaultConfigName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := classify.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	return loaded
}

func usage(name string, origins ...scan.Origin) *scan.Usage {
	u := &scan.Usage{Name: manifest.Normalize(name), RawName: name, FileCount: 1}
	for _, o := range origins {
		u.Origins.Add(o)
	}
	return u
}

func usageMap(us ...*scan.Usage) map[string]*scan.Usage {
	m := map[string]*scan.Usage{}
	for _, u := range us {
		m[u.Name] = u
	}
	return m
}

func TestBuildAddsUsedUndeclared(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
`)
	r := &fakeResolver{versions: map[string]string{"regex": "1.10.4"}}

	plan, err := Build(context.Background(), m,
		usageMap(usage("regex", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Additions) != 1 {
		t.Fatalf("additions = %+v, want one", plan.Additions)
	}
	add := plan.Additions[0]
	if add.Name != "regex" || add.Version != "1.10.4" || add.Section != SectionNormal {
		t.Errorf("addition = %+v", add)
	}
}

func TestBuildTestOnlyGoesToDev(t *testing.T) {
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	r := &fakeResolver{versions: map[string]string{"tempfile": "3.10.0"}}

	plan, err := Build(context.Background(), m,
		usageMap(usage("tempfile", scan.OriginTest)),
		Options{Config: loadConfig(t, nil), Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Additions) != 1 || plan.Additions[0].Section != SectionDev {
		t.Errorf("test-only crate should target dev-dependencies: %+v", plan.Additions)
	}
}

func TestBuildRemovesUnused(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
regex = "1.9"

[dev-dependencies]
criterion = "0.5"
`)
	plan, err := Build(context.Background(), m, usageMap(),
		Options{Config: loadConfig(t, nil), Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Removals) != 2 {
		t.Fatalf("removals = %+v, want two", plan.Removals)
	}
	byName := map[string]Removal{}
	for _, r := range plan.Removals {
		byName[r.Name] = r
	}
	if r, ok := byName["criterion"]; !ok || !r.Dev {
		t.Errorf("criterion removal = %+v", byName)
	}
	if r, ok := byName["regex"]; !ok || r.Dev {
		t.Errorf("regex removal = %+v", byName)
	}
}

func TestBuildEssentialNeverRemoved(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
serde = "1.0"
tokio = "1.35"
`)
	plan, err := Build(context.Background(), m, usageMap(),
		Options{Config: loadConfig(t, nil), Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Removals) != 0 {
		t.Errorf("essential crates removed: %+v", plan.Removals)
	}
	if len(plan.Diagnostics) != 2 {
		t.Errorf("diagnostics = %+v, want two kept notices", plan.Diagnostics)
	}
}

func TestBuildExcludedNeverTouched(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
banned = "0.1"
`)
	cfg := loadConfig(t, &classify.Config{Exclude: []string{"banned", "blocked"}})
	r := &fakeResolver{versions: map[string]string{"blocked": "9.9.9"}}

	plan, err := Build(context.Background(), m,
		usageMap(usage("blocked", scan.OriginLibrary)),
		Options{Config: cfg, Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	// An excluded crate is neither added when used nor removed when unused.
	if len(plan.Additions) != 0 {
		t.Errorf("excluded crate added: %+v", plan.Additions)
	}
	if len(plan.Removals) != 0 {
		t.Errorf("excluded crate removed: %+v", plan.Removals)
	}
	if len(plan.Diagnostics) == 0 {
		t.Error("expected an exclusion diagnostic")
	}
	if r.called("blocked") {
		t.Error("resolver consulted for an excluded crate")
	}
}

func TestBuildStdCratesIgnored(t *testing.T) {
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	r := &fakeResolver{}

	plan, err := Build(context.Background(), m,
		usageMap(usage("std", scan.OriginLibrary), usage("core", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("std usage produced changes: %+v", plan)
	}
	if r.called("std") || r.called("core") {
		t.Error("resolver consulted for toolchain modules")
	}
}

func TestBuildMoves(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
mockall = "0.12"

[dev-dependencies]
regex = "1.9"
`)
	plan, err := Build(context.Background(), m,
		usageMap(
			usage("mockall", scan.OriginTest),  // test-only, declared normal
			usage("regex", scan.OriginLibrary), // library use, declared dev
		),
		Options{Config: loadConfig(t, nil), Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Moves) != 2 {
		t.Fatalf("moves = %+v, want two", plan.Moves)
	}
	byName := map[string]Move{}
	for _, mv := range plan.Moves {
		byName[mv.Name] = mv
	}
	if mv := byName["mockall"]; mv.To != SectionDev {
		t.Errorf("mockall move = %+v, want to dev", mv)
	}
	if mv := byName["regex"]; mv.To != SectionNormal {
		t.Errorf("regex move = %+v, want to normal", mv)
	}
}

func TestBuildDevOnlyConfigForcesDev(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
criterion = "0.5"
`)
	cfg := loadConfig(t, &classify.Config{DevOnly: []string{"criterion"}})

	plan, err := Build(context.Background(), m,
		usageMap(usage("criterion", scan.OriginLibrary)),
		Options{Config: cfg, Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(plan.Moves) != 1 || plan.Moves[0].To != SectionDev {
		t.Errorf("dev_only crate not moved to dev: %+v", plan.Moves)
	}
}

func TestBuildWorkspaceInheritance(t *testing.T) {
	ws := parseManifest(t, `[workspace]
members = ["demo"]

[workspace.dependencies]
regex = "1.10"
`)
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	r := &fakeResolver{}

	plan, err := Build(context.Background(), m,
		usageMap(usage("regex", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Workspace: ws, Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Additions) != 1 {
		t.Fatalf("additions = %+v", plan.Additions)
	}
	add := plan.Additions[0]
	if !add.Workspace || add.Version != "" {
		t.Errorf("workspace-declared crate should inherit, got %+v", add)
	}
	if r.called("regex") {
		t.Error("resolver consulted for a workspace-inherited crate")
	}
}

func TestBuildPathLocalNeverResolved(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
locallib = { path = "../locallib" }
`)
	r := &fakeResolver{}

	plan, err := Build(context.Background(), m,
		usageMap(usage("locallib", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("declared path dep in use should change nothing: %+v", plan)
	}
	if r.called("locallib") {
		t.Error("resolver consulted for a path dependency")
	}
}

func TestBuildUndeclaredPathLocalDiagnostic(t *testing.T) {
	ws := parseManifest(t, `[workspace]
members = ["crates/member_a", "crates/demo"]
`)
	m := parseManifest(t, "[package]\nname = \"demo\"\n")

	plan, err := Build(context.Background(), m,
		usageMap(usage("member_a", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Workspace: ws, Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(plan.Additions) != 0 {
		t.Errorf("workspace member must not be added as registry dep: %+v", plan.Additions)
	}
	if len(plan.Diagnostics) != 1 {
		t.Errorf("diagnostics = %+v, want one", plan.Diagnostics)
	}
}

func TestBuildLookupFailureIsRecoverable(t *testing.T) {
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	r := &fakeResolver{
		versions: map[string]string{"regex": "1.10.4"},
		errs: map[string]error{
			"flaky": errors.New(errors.ErrCodeNetwork, "connection reset"),
		},
	}

	plan, err := Build(context.Background(), m,
		usageMap(
			usage("regex", scan.OriginLibrary),
			usage("flaky", scan.OriginLibrary),
		),
		Options{Config: loadConfig(t, nil), Resolver: r})
	if err != nil {
		t.Fatalf("lookup failure must not abort the run: %v", err)
	}

	if len(plan.Additions) != 1 || plan.Additions[0].Name != "regex" {
		t.Errorf("additions = %+v, want regex only", plan.Additions)
	}
	if len(plan.Diagnostics) != 1 || plan.Diagnostics[0].Name != "flaky" {
		t.Errorf("diagnostics = %+v, want flaky lookup failure", plan.Diagnostics)
	}
}

func TestBuildConfigEssentialAddedWhenMissing(t *testing.T) {
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	cfg := loadConfig(t, &classify.Config{Essential: []string{"my-framework"}})
	r := &fakeResolver{versions: map[string]string{"my-framework": "2.0.0"}}

	plan, err := Build(context.Background(), m, usageMap(),
		Options{Config: cfg, Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(plan.Additions) != 1 || plan.Additions[0].Name != "my-framework" {
		t.Fatalf("additions = %+v, want my-framework", plan.Additions)
	}
	if plan.Additions[0].Version != "2.0.0" {
		t.Errorf("version = %q", plan.Additions[0].Version)
	}
}

func TestBuildExcludeOutranksConfigEssential(t *testing.T) {
	m := parseManifest(t, "[package]\nname = \"demo\"\n")
	cfg := loadConfig(t, &classify.Config{
		Exclude:   []string{"my-framework"},
		Essential: []string{"my-framework"},
	})
	r := &fakeResolver{versions: map[string]string{"my-framework": "2.0.0"}}

	plan, err := Build(context.Background(), m, usageMap(),
		Options{Config: cfg, Resolver: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(plan.Additions) != 0 {
		t.Fatalf("additions = %+v, want none for an excluded name", plan.Additions)
	}
	if r.called("my-framework") {
		t.Error("resolver consulted for an excluded name")
	}
}

func TestBuildUpdateExisting(t *testing.T) {
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
serde = "1.0.100"
regex = "1.10.4"
`)
	r := &fakeResolver{versions: map[string]string{
		"serde": "1.0.200",
		"regex": "1.10.4",
	}}

	plan, err := Build(context.Background(), m,
		usageMap(
			usage("serde", scan.OriginLibrary),
			usage("regex", scan.OriginLibrary),
		),
		Options{Config: loadConfig(t, nil), Resolver: r, UpdateExisting: true})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if len(plan.Updates) != 1 {
		t.Fatalf("updates = %+v, want serde only", plan.Updates)
	}
	u := plan.Updates[0]
	if u.Name != "serde" || u.From != "1.0.100" || u.To != "1.0.200" {
		t.Errorf("update = %+v", u)
	}
}

func TestBuildIdempotent(t *testing.T) {
	// A manifest already in sync with usage yields an empty plan.
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
regex = "1.10.4"

[dev-dependencies]
tempfile = "3.10.0"
`)
	plan, err := Build(context.Background(), m,
		usageMap(
			usage("regex", scan.OriginLibrary),
			usage("tempfile", scan.OriginTest),
		),
		Options{Config: loadConfig(t, nil), Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("in-sync manifest produced changes: %+v", plan)
	}
}

func TestBuildBareWorkspaceRoot(t *testing.T) {
	m := parseManifest(t, `[workspace]
members = ["crates/a"]
`)
	plan, err := Build(context.Background(), m, usageMap(), Options{})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("bare workspace root should produce no changes: %+v", plan)
	}
	if len(plan.Diagnostics) != 1 {
		t.Errorf("diagnostics = %+v, want the nothing-to-reconcile notice", plan.Diagnostics)
	}
}

func TestBuildDashUnderscoreMatch(t *testing.T) {
	// Declared with a dash, referenced with an underscore: in sync.
	m := parseManifest(t, `[package]
name = "demo"

[dependencies]
async-trait = "0.1"
`)
	plan, err := Build(context.Background(), m,
		usageMap(usage("async_trait", scan.OriginLibrary)),
		Options{Config: loadConfig(t, nil), Resolver: &fakeResolver{}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("spelling variants should reconcile cleanly: %+v", plan)
	}
}
