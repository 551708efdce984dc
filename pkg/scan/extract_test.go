package scan

import (
	"sort"
	"testing"
)

func names(refs []Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestExtractUseDeclarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "simple use",
			src:  "use serde::Serialize;",
			want: []string{"serde"},
		},
		{
			name: "grouped use keeps only the root",
			src:  "use serde::{Serialize, Deserialize};",
			want: []string{"serde"},
		},
		{
			name: "nested group leaf is not a crate",
			src:  "use tokio::{net::TcpListener, sync::mpsc};",
			want: []string{"tokio"},
		},
		{
			name: "multi-line grouped use",
			src: `use serde::{
    Serialize,
    Deserialize,
};`,
			want: []string{"serde"},
		},
		{
			name: "top-level group expands per alternative",
			src:  "use {anyhow::Result, thiserror::Error};",
			want: []string{"anyhow", "thiserror"},
		},
		{
			name: "pub use",
			src:  "pub use serde_json::Value;",
			want: []string{"serde_json"},
		},
		{
			name: "pub(crate) use",
			src:  "pub(crate) use tracing::info;",
			want: []string{"tracing"},
		},
		{
			name: "leading double colon",
			src:  "use ::std::collections::HashMap;",
			want: []string{"std"},
		},
		{
			name: "as rename keeps the root",
			src:  "use serde_json as json;",
			want: []string{"serde_json"},
		},
		{
			name: "path keywords are skipped",
			src:  "use self::util;\nuse super::config;\nuse crate::model;",
			want: nil,
		},
		{
			name: "raw identifier prefix trimmed",
			src:  "use r#async_trait::async_trait;",
			want: []string{"async_trait"},
		},
		{
			name: "glob import",
			src:  "use rayon::prelude::*;",
			want: []string{"rayon"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := names(Extract(tc.src, OriginLibrary))
			if !equalNames(got, tc.want) {
				t.Errorf("Extract(%q) = %v, want %v", tc.src, got, tc.want)
			}
		})
	}
}

func TestExtractExternCrate(t *testing.T) {
	src := "extern crate libc;\npub extern crate serde;"
	got := names(Extract(src, OriginLibrary))
	want := []string{"libc", "serde"}
	if !equalNames(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractBareQualified(t *testing.T) {
	src := `fn main() {
    let v = serde_json::to_string(&x).unwrap();
    let r = regex::Regex::new("a").unwrap();
}`
	refs := Extract(src, OriginLibrary)
	got := names(refs)
	want := []string{"regex", "serde_json"}
	if !equalNames(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
	for _, r := range refs {
		if r.ViaImport {
			t.Errorf("%s: bare qualified reference marked ViaImport", r.Name)
		}
	}
}

func TestExtractQualifiedIgnoresTypes(t *testing.T) {
	// Upper-case leading segments are type paths, not crates.
	src := `let s = String::from("x"); let v = Vec::<u8>::new();`
	if got := Extract(src, OriginLibrary); len(got) != 0 {
		t.Errorf("Extract = %v, want none", names(got))
	}
}

func TestExtractDedupWithinFile(t *testing.T) {
	src := `use serde::Serialize;
fn f() { serde::to_value(x); serde_json::json!({}); serde_json::to_vec(y); }`
	got := names(Extract(src, OriginLibrary))
	want := []string{"serde", "serde_json"}
	if !equalNames(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractNestedGroupLeafNotQualified(t *testing.T) {
	// The leaf b::c inside the group must not surface as a crate "b"
	// through the bare-qualified pass.
	src := "use a::{b::c, d};"
	got := names(Extract(src, OriginLibrary))
	want := []string{"a"}
	if !equalNames(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractIgnoresCommentsAndStrings(t *testing.T) {
	src := `// use serde::Serialize;
/* tokio::spawn(async {}); */
let s = "regex::Regex";
let raw = r#"anyhow::Result"#;
use log::info;`
	got := names(Extract(src, OriginLibrary))
	want := []string{"log"}
	if !equalNames(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractOriginTagging(t *testing.T) {
	refs := Extract("use tempfile::TempDir;", OriginTest)
	if len(refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(refs))
	}
	if refs[0].Origin != OriginTest {
		t.Errorf("Origin = %v, want test", refs[0].Origin)
	}
	if refs[0].RawName != "tempfile" {
		t.Errorf("RawName = %q, want tempfile", refs[0].RawName)
	}
}

func TestExtractNormalizesDashes(t *testing.T) {
	// Source always spells crates with underscores; the normalized name
	// must match a manifest entry spelled with dashes.
	refs := Extract("use async_trait::async_trait;", OriginLibrary)
	if len(refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(refs))
	}
	if refs[0].Name != "async_trait" {
		t.Errorf("Name = %q, want async_trait", refs[0].Name)
	}
	if refs[0].RawName != "async_trait" {
		t.Errorf("RawName = %q, want async_trait", refs[0].RawName)
	}
}

func TestUseRoots(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"serde::Serialize", []string{"serde"}},
		{"serde", []string{"serde"}},
		{"::tokio::net", []string{"tokio"}},
		{"{anyhow::Result, thiserror::Error}", []string{"anyhow", "thiserror"}},
		{"{a::{b, c}, d::e}", []string{"a", "d"}},
		{"serde_json as json", []string{"serde_json"}},
	}
	for _, tc := range tests {
		got := useRoots(tc.expr)
		sort.Strings(got)
		want := append([]string(nil), tc.want...)
		sort.Strings(want)
		if !equalNames(got, want) {
			t.Errorf("useRoots(%q) = %v, want %v", tc.expr, got, want)
		}
	}
}
