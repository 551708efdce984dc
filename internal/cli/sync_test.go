package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/depsync/pkg/cache"
	"github.com/matzehuels/depsync/pkg/classify"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/registry"
)

// testProject lays out a minimal Rust project and returns a session wired
// to a fake crates.io endpoint.
func testProject(t *testing.T, manifestContent string, sources map[string]string, versions map[string]string) *session {
	t.Helper()
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, manifest.FileName), []byte(manifestContent), 0o644); err != nil {
		t.Fatal(err)
	}
	for rel, content := range sources {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/crates/")
		v, ok := versions[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"crate":{"name":%q,"max_version":%q},"versions":[{"num":%q,"yanked":false}]}`, name, v, v)
	}))
	t.Cleanup(srv.Close)

	m, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := classify.LoadDefaultConfig(root)
	if err != nil {
		t.Fatal(err)
	}

	return &session{
		root:     root,
		logger:   loggerFromContext(context.Background()),
		cfg:      cfg,
		manifest: m,
		resolver: registry.NewCratesClient(registry.Options{
			Cache:   cache.NewNullCache(),
			BaseURL: srv.URL,
		}),
	}
}

func TestBuildPlanEndToEnd(t *testing.T) {
	s := testProject(t, `[package]
name = "demo"
version = "0.1.0"

[dependencies]
unused = "0.3"
`, map[string]string{
		"src/main.rs":          "use regex::Regex;\nfn main() {}",
		"tests/integration.rs": "use tempfile::TempDir;",
	}, map[string]string{
		"regex":    "1.10.4",
		"tempfile": "3.10.0",
	})

	plan, err := buildPlan(context.Background(), s, false)
	if err != nil {
		t.Fatalf("buildPlan error: %v", err)
	}

	if len(plan.Additions) != 2 {
		t.Fatalf("additions = %+v, want regex and tempfile", plan.Additions)
	}
	if len(plan.Removals) != 1 || plan.Removals[0].Name != "unused" {
		t.Errorf("removals = %+v, want unused", plan.Removals)
	}
}

func TestWritePlanRewritesManifest(t *testing.T) {
	s := testProject(t, `# demo project
[package]
name = "demo"
version = "0.1.0"

[dependencies]
unused = "0.3"
`, map[string]string{
		"src/main.rs": "use regex::Regex;\nfn main() {}",
	}, map[string]string{
		"regex": "1.10.4",
	})

	plan, err := buildPlan(context.Background(), s, false)
	if err != nil {
		t.Fatalf("buildPlan error: %v", err)
	}
	if err := writePlan(s, plan); err != nil {
		t.Fatalf("writePlan error: %v", err)
	}

	data, err := os.ReadFile(s.manifest.Path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.Contains(out, `regex = "1.10.4"`) {
		t.Errorf("regex not added:\n%s", out)
	}
	if strings.Contains(out, "unused =") {
		t.Errorf("unused dependency kept:\n%s", out)
	}
	if !strings.Contains(out, "# demo project") {
		t.Errorf("comment outside the dependency tables lost:\n%s", out)
	}
	if !strings.Contains(out, `name = "demo"`) {
		t.Errorf("package table lost:\n%s", out)
	}
}

func TestBuildPlanDryRunLeavesManifestUntouched(t *testing.T) {
	content := `[package]
name = "demo"

[dependencies]
unused = "0.3"
`
	s := testProject(t, content, map[string]string{
		"src/main.rs": "use regex::Regex;\nfn main() {}",
	}, map[string]string{
		"regex": "1.10.4",
	})

	if _, err := buildPlan(context.Background(), s, false); err != nil {
		t.Fatalf("buildPlan error: %v", err)
	}

	data, err := os.ReadFile(s.manifest.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("plan computation modified the manifest:\n%s", data)
	}
}
