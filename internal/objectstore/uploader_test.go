package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type put struct {
	bucket, key, contentType string
	size                     int64
	body                     string
}

type fakeClient struct {
	puts []put
	err  error
}

func (c *fakeClient) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if c.err != nil {
		return minio.UploadInfo{}, c.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	c.puts = append(c.puts, put{bucket, key, opts.ContentType, size, string(body)})
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestUploader_Upload(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "cell1_ch0.csv")
	require.NoError(t, os.WriteFile(file, []byte("time_s\n"), 0o644))

	client := &fakeClient{}
	u := newUploader(client, "epochs", "/lab/2024/", root)

	key, err := u.Upload(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "lab/2024/cell1_ch0.csv", key)
	require.Len(t, client.puts, 1)
	assert.Equal(t, put{"epochs", "lab/2024/cell1_ch0.csv", "text/csv", 7, "time_s\n"}, client.puts[0])
}

func TestUploader_Errors(t *testing.T) {
	root := t.TempDir()
	u := newUploader(&fakeClient{err: errors.New("access denied")}, "epochs", "", root)

	_, err := u.Upload(context.Background(), filepath.Join(root, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(root, "a.npz")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = u.Upload(context.Background(), file)
	assert.ErrorContains(t, err, "access denied")
}

func TestUploader_Key(t *testing.T) {
	u := newUploader(nil, "b", "runs", "/out")
	assert.Equal(t, "runs/sub/x.atf", u.Key("/out/sub/x.atf"))
	assert.Equal(t, "runs/y.json", u.Key("/elsewhere/y.json"))

	bare := newUploader(nil, "b", "", "/out")
	assert.Equal(t, "x.npz", bare.Key("/out/x.npz"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/tab-separated-values", ContentType("a.ATF"))
	assert.Equal(t, "application/zip", ContentType("a.npz"))
	assert.Equal(t, "application/json", ContentType("a_summary.json"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin"))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "epochs",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.Bucket = " "
	assert.Error(t, invalid.Validate())

	_, err := NewMinIOClient(invalid)
	assert.Error(t, err)
}
