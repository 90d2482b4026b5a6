package provision_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyor-ci/conveyor/pkg/matrix"
	"github.com/conveyor-ci/conveyor/pkg/pipefile"
	"github.com/conveyor-ci/conveyor/pkg/provision"
)

func TestInstallerName(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		OS       string
		Python   string
		Expected string
		Err      bool
	}{
		"linux-py2": {OS: "linux", Python: "2.7", Expected: "Miniconda2-latest-Linux-x86_64.sh"},
		"linux-py3": {OS: "linux", Python: "3.6", Expected: "Miniconda3-latest-Linux-x86_64.sh"},
		"osx-py2":   {OS: "osx", Python: "2.7", Expected: "Miniconda2-latest-MacOSX-x86_64.sh"},
		"osx-py3":   {OS: "osx", Python: "3.10", Expected: "Miniconda3-latest-MacOSX-x86_64.sh"},
		"bad-os":    {OS: "windows", Python: "3.6", Err: true},
		"bad-py":    {OS: "linux", Python: "pypy", Err: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			name, err := provision.InstallerName(tc.OS, tc.Python)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, name)
		})
	}
}

func TestInstallerURL(t *testing.T) {
	t.Parallel()
	job := matrix.Job{OS: "linux", Python: "2.7"}

	deflt := &provision.Provisioner{}
	u, err := deflt.InstallerURL(job)
	require.NoError(t, err)
	assert.Equal(t, "https://repo.anaconda.com/miniconda/Miniconda2-latest-Linux-x86_64.sh", u)

	custom := &provision.Provisioner{
		Spec: &pipefile.Provision{BaseURL: "https://mirror.example.com/conda/"},
	}
	u, err = custom.InstallerURL(job)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.com/conda/Miniconda2-latest-Linux-x86_64.sh", u)
}

func TestFetchInstaller(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/Miniconda2-latest-Linux-x86_64.sh", r.URL.Path)
		_, _ = w.Write([]byte("#!/bin/sh\necho fake installer\n"))
	}))
	defer srv.Close()

	p := &provision.Provisioner{
		Spec:     &pipefile.Provision{BaseURL: srv.URL},
		CacheDir: t.TempDir(),
	}
	job := matrix.Job{OS: "linux", Python: "2.7"}

	path1, err := p.FetchInstaller(ctx, job)
	require.NoError(t, err)
	content, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho fake installer\n", string(content))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	path2, err := p.FetchInstaller(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second fetch must hit the cache, not the server")
}

func TestFetchInstallerHTTPError(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := &provision.Provisioner{
		Spec:     &pipefile.Provision{BaseURL: srv.URL},
		CacheDir: t.TempDir(),
	}
	_, err := p.FetchInstaller(ctx, matrix.Job{OS: "linux", Python: "2.7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	entries, err := os.ReadDir(p.CacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed download must not leave a cache entry behind")
}

func fakeConda(t *testing.T, version string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conda")
	script := "#!/bin/sh\necho \"conda " + version + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCheckCondaVersion(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		MinConda string
		Version  string
		Err      string
	}{
		"ok":            {MinConda: ">=4.5", Version: "4.5.11"},
		"ok-newer":      {MinConda: ">=4.5", Version: "23.1.0"},
		"too-old":       {MinConda: ">=4.5", Version: "4.3.1", Err: "does not satisfy"},
		"no-constraint": {MinConda: "", Version: "0.0.1"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			p := &provision.Provisioner{
				Spec: &pipefile.Provision{MinConda: tc.MinConda},
			}
			err := p.CheckCondaVersion(ctx, fakeConda(t, tc.Version))
			if tc.Err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.Err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
