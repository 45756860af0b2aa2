package artifact

import (
	"reflect"
	"testing"

	"github.com/kannich/kannich/pkg/types"
)

func TestMatch_DoubleStarCrossesDirectories(t *testing.T) {
	files := []string{"dist/app.bin", "dist/nested/lib.so", "src/main.go", "README.md"}
	spec := types.ArtifactSpec{Includes: []string{"dist/**"}}
	got := match(files, spec)
	want := []string{"dist/app.bin", "dist/nested/lib.so"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("match() = %v, want %v", got, want)
	}
}

func TestMatch_SingleStarDoesNotCrossDirectories(t *testing.T) {
	files := []string{"dist/app.bin", "dist/nested/lib.so"}
	spec := types.ArtifactSpec{Includes: []string{"dist/*"}}
	got := match(files, spec)
	want := []string{"dist/app.bin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("match() = %v, want %v", got, want)
	}
}

func TestMatch_ExcludeWinsOverInclude(t *testing.T) {
	files := []string{"dist/app.bin", "dist/app.bin.map"}
	spec := types.ArtifactSpec{Includes: []string{"dist/**"}, Excludes: []string{"**/*.map"}}
	got := match(files, spec)
	want := []string{"dist/app.bin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("match() = %v, want %v", got, want)
	}
}

func TestMatch_QuestionMarkMatchesExactlyOneChar(t *testing.T) {
	files := []string{"log1.txt", "log10.txt", "logA.txt"}
	spec := types.ArtifactSpec{Includes: []string{"log?.txt"}}
	got := match(files, spec)
	want := []string{"log1.txt", "logA.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("match() = %v, want %v", got, want)
	}
}

func TestMatch_NoIncludesMatchesNothing(t *testing.T) {
	files := []string{"a.txt"}
	got := match(files, types.ArtifactSpec{})
	if len(got) != 0 {
		t.Errorf("match() = %v, want empty", got)
	}
}
