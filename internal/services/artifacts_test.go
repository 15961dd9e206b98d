package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	id := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.objects[id] = data
	f.types[id] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestZipDir(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lambda_function.py":     "def handler(event, context): pass\n",
		"app/router.py":          "ROUTES = {}\n",
		"app/models/__init__.py": "",
	})

	data, err := ZipDir(dir)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"app/models/__init__.py", "app/router.py", "lambda_function.py"}, names)

	again, err := ZipDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Digest(data), Digest(again), "archives of the same tree should be identical")
}

func TestZipDir_Symlinks(t *testing.T) {
	shared := writeTree(t, map[string]string{"settings.py": "DEBUG = False\n", "lib/util.py": ""})

	tests := []struct {
		name    string
		target  string
		wantErr string
	}{
		{name: "file", target: filepath.Join(shared, "settings.py")},
		{name: "directory", target: filepath.Join(shared, "lib"), wantErr: "symlinked directory"},
		{name: "broken", target: filepath.Join(shared, "missing.py"), wantErr: "broken symlink"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeTree(t, map[string]string{"lambda_function.py": "print('hi')\n"})
			link := filepath.Join(dir, "linked")
			if err := os.Symlink(tt.target, link); err != nil {
				t.Skipf("symlinks unavailable: %v", err)
			}

			data, err := ZipDir(dir)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.ErrorContains(t, err, link)
				return
			}
			require.NoError(t, err)

			r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			require.Len(t, r.File, 2)
			assert.Equal(t, "linked", r.File[1].Name)

			f, err := r.File[1].Open()
			require.NoError(t, err)
			defer f.Close()
			content, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, "DEBUG = False\n", string(content))
		})
	}
}

func TestZipDir_Missing(t *testing.T) {
	_, err := ZipDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestArtifactStore_UploadCode(t *testing.T) {
	dir := writeTree(t, map[string]string{"lambda_function.py": "print('hi')\n"})
	client := newFakeS3()
	store := NewArtifactStore(client, "artifacts", "us-east-2")

	key, err := store.UploadCode(context.Background(), "svc", "dev", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "svc/dev/code/"), key)
	assert.True(t, strings.HasSuffix(key, ".zip"), key)
	assert.Equal(t, "application/zip", client.types["artifacts/"+key])

	data, err := store.Download(context.Background(), "artifacts", key)
	require.NoError(t, err)
	assert.Equal(t, CodeKey("svc", "dev", Digest(data)), key)
}

func TestArtifactStore_UploadTemplate(t *testing.T) {
	client := newFakeS3()
	body := []byte(`{"Resources":{}}`)

	tests := []struct {
		region string
		prefix string
	}{
		{region: "us-east-2", prefix: "https://artifacts.s3.us-east-2.amazonaws.com/svc/dev/templates/"},
		{region: "us-east-1", prefix: "https://artifacts.s3.amazonaws.com/svc/dev/templates/"},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			store := NewArtifactStore(client, "artifacts", tt.region)
			url, err := store.UploadTemplate(context.Background(), "svc", "dev", body)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix+Digest(body)+".json", url)
			assert.Equal(t, body, client.objects["artifacts/"+TemplateKey("svc", "dev", Digest(body))])
		})
	}
}

func TestArtifactStore_DownloadMissing(t *testing.T) {
	store := NewArtifactStore(newFakeS3(), "artifacts", "us-east-2")
	_, err := store.Download(context.Background(), "artifacts", "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestDefaultArtifactBucket(t *testing.T) {
	assert.Equal(t, "svc-111111111111-us-east-2-artifacts", DefaultArtifactBucket("svc", "111111111111", "us-east-2"))
}
