package evidence

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

	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/store"
)

func TestDir_Record(t *testing.T) {
	d := NewDir(t.TempDir(), nil)
	o := succeededOutcome()
	require.NoError(t, d.Record(context.Background(), o))

	base := d.Path(o.RunID)
	md, err := os.ReadFile(filepath.Join(base, FileEvidence))
	require.NoError(t, err)
	assert.Equal(t, RenderMarkdown(o), string(md))

	log, err := os.ReadFile(filepath.Join(base, "logs", "attempt-0-candidate.log"))
	require.NoError(t, err)
	assert.Equal(t, "candidate log 0\n", string(log))

	diff, err := os.ReadFile(filepath.Join(base, FileDiff))
	require.NoError(t, err)
	assert.Equal(t, o.Diff, string(diff))
}

func TestDir_RejectsPackWithoutRunID(t *testing.T) {
	err := NewDir(t.TempDir(), nil).Write(context.Background(), Pack{})
	assert.ErrorContains(t, err, "no run id")
}

type fakeObjects struct {
	exists  bool
	made    []string
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.exists, nil
}

func (f *fakeObjects) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.types = map[string]string{}
	}
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestS3_Record(t *testing.T) {
	fake := &fakeObjects{}
	s := newS3(fake, "evidence", "/parity/", "us-east-1", nil)
	o := succeededOutcome()

	require.NoError(t, s.Record(context.Background(), o))
	require.NoError(t, s.Record(context.Background(), fatalOutcome()))

	assert.Equal(t, []string{"evidence"}, fake.made, "bucket is created once")
	key := "evidence/parity/" + o.RunID + "/" + FileEvidence
	assert.Equal(t, RenderMarkdown(o), string(fake.objects[key]))
	assert.Equal(t, "text/markdown; charset=utf-8", fake.types[key])
	assert.Contains(t, fake.objects, "evidence/parity/run-fatal/"+FileOutcome)
}

func TestS3_UploadError(t *testing.T) {
	fake := &fakeObjects{exists: true, putErr: errors.New("access denied")}
	err := newS3(fake, "evidence", "", "", nil).Record(context.Background(), fatalOutcome())
	assert.ErrorContains(t, err, "upload run-fatal/outcome.json: access denied")
}

func TestNewS3_RequiresSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"endpoint", S3Config{}, "endpoint"},
		{"keys", S3Config{Endpoint: "localhost:9000"}, "access key"},
		{"bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3(tt.cfg, nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

type failingSink struct{ err error }

func (f failingSink) Record(context.Context, ir.RunOutcome) error { return f.err }

func TestMulti_RecordsEverySink(t *testing.T) {
	d := NewDir(t.TempDir(), nil)
	boom := errors.New("boom")
	m := Multi{failingSink{boom}, nil, d}

	err := m.Record(context.Background(), fatalOutcome())
	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(filepath.Join(d.Path("run-fatal"), FileOutcome))
	assert.NoError(t, statErr, "later sinks still run")
}

func TestStoreSink_Record(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "parity.db"))
	require.NoError(t, err)
	defer st.Close()

	sink := StoreSink{Store: st}
	o := succeededOutcome()
	require.NoError(t, sink.Record(context.Background(), o))
	require.NoError(t, sink.Record(context.Background(), o))

	got, err := st.ReadOutcome(context.Background(), o.RunID)
	require.NoError(t, err)
	assert.Equal(t, o.Final, got.Final)
	assert.Len(t, got.Attempts, 2)
}
