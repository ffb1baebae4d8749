package tasks

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/media"
)

func TestExtractArgs(t *testing.T) {
	cases := []struct {
		name string
		opts appconfig.ExtractOptions
		out  string
		want string
	}{
		{"bare", appconfig.ExtractOptions{}, "", "extract in.pkg"},
		{"output only", appconfig.ExtractOptions{}, "/out", "extract -o /out in.pkg"},
		{
			"all flags",
			appconfig.ExtractOptions{
				IgnoreExts: "tex", OnlyExts: "png,jpg", Debug: true, ConvertTex: true, SingleDir: true,
				Recursive: true, CopyProject: true, UseName: true, NoTexConvert: true, Overwrite: true,
			},
			"/out",
			"extract -o /out -i tex -e png,jpg -d -t -s -r -c -n --no-tex-convert --overwrite in.pkg",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.Join(ExtractArgs(tc.opts, tc.out, "in.pkg"), " ")
			if got != tc.want {
				t.Fatalf("got  %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestInfoArgs(t *testing.T) {
	got := strings.Join(InfoArgs(InfoOptions{Sort: true, SortBy: "size", Tex: true, ProjectInfo: "*", PrintEntries: true, TitleFilter: "sea"}, "x.pkg"), " ")
	want := "info -s -b size -t -p * -e --title-filter sea x.pkg"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputDir(t *testing.T) {
	item := media.Item{ID: "123", Path: filepath.Join("lib", "123"), Title: `Rain: "Night"?`}
	cases := []struct {
		base    string
		flatten bool
		want    string
	}{
		{"", false, filepath.Join("lib", "123", "extracted")},
		{"", true, filepath.Join("lib", "123", "extracted")},
		{"out", true, "out"},
		{"out", false, filepath.Join("out", "Rain_ _Night__")},
	}
	for _, tc := range cases {
		if got := OutputDir(item, tc.base, tc.flatten); got != tc.want {
			t.Errorf("OutputDir(%q, %v) = %q, want %q", tc.base, tc.flatten, got, tc.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Plain":          "Plain",
		"a/b\\c":         "a_b_c",
		"  dots...  ":    "dots",
		"tab\tname":      "tab_name",
		"":               "42",
		"???":            "42",
		"...":            "42",
		"Ünïcode ok 東京": "Ünïcode ok 東京",
	}
	for in, want := range cases {
		if got := SanitizeName(in, "42"); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SanitizeName("", ""); got != "item" {
		t.Errorf("empty fallback = %q", got)
	}
}

func TestExtractJob(t *testing.T) {
	pkg := media.Item{ID: "1", Path: "/lib/1", Title: "One", Packaged: true, PackagePath: "/lib/1/scene.pkg"}
	j := ExtractJob(pkg, "/out", false)
	if j.Kind != jobqueue.KindExtract || j.Input != "/lib/1/scene.pkg" || j.OutputDir != filepath.Join("/out", "One") {
		t.Fatalf("packaged job = %+v", j)
	}
	plain := media.Item{ID: "2", Path: "/lib/2", Title: "Two"}
	j = ExtractJob(plain, "", false)
	if j.Kind != jobqueue.KindCopy || j.Input != "/lib/2" || j.OutputDir != filepath.Join("/lib/2", "extracted") {
		t.Fatalf("copy job = %+v", j)
	}
}
