package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Info stores version and Git commit information.
type Info struct {
	Name    string
	Version string
	Commit  string
}

// Version assembles an Info from the build-time version and the Git metadata
// placeholders substituted by `git archive` via the `export-subst` attribute.
// Unsubstituted placeholders are ignored.
func Version(name, version, gitDescribe, gitHash string) *Info {
	if !strings.HasPrefix(gitDescribe, "$") && gitDescribe != "" {
		version = gitDescribe
	}

	commit := ""
	if !strings.HasPrefix(gitHash, "$") {
		commit = gitHash
	}

	return &Info{Name: name, Version: version, Commit: commit}
}

// String implements fmt.Stringer.
func (i *Info) String() string {
	if i.Commit != "" {
		return fmt.Sprintf("%s version %s (%s)", i.Name, i.Version, i.Commit)
	}

	return fmt.Sprintf("%s version %s", i.Name, i.Version)
}

// Print writes version information to standard output.
func (i *Info) Print() {
	fmt.Println(i.String())
	fmt.Println("Go version:", runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH)
}
