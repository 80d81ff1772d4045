package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

func cleanedDict(t *testing.T) *dataset.Dict {
	t.Helper()
	feature, err := labels.New([]string{"auto insurance", "life insurance", "medicare insurance"})
	require.NoError(t, err)

	train := dataset.NewSplit("train")
	require.NoError(t, train.AddClassLabelColumn("label", []int{1, 0, 2, 1}, feature))
	require.NoError(t, train.AddStringColumn("text", []string{
		"what is life insurance?",
		"is my car covered?",
		"does medicare cover dental?",
		"can i borrow from whole life?",
	}))

	test := dataset.NewSplit("test")
	require.NoError(t, test.AddClassLabelColumn("label", []int{2}, feature))
	require.NoError(t, test.AddStringColumn("text", []string{"what is medicare part b?"}))

	validation := dataset.NewSplit("validation")
	require.NoError(t, validation.AddClassLabelColumn("label", []int{}, feature))
	require.NoError(t, validation.AddStringColumn("text", []string{}))

	d, err := dataset.NewDict(train, test, validation)
	require.NoError(t, err)
	return d
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "insuranceqa")
	d := cleanedDict(t)

	require.NoError(t, SaveToDisk(d, dir, "run-1"))
	for _, f := range []string{dictFile, "train/" + dataFile, "train/" + infoFile, "train/" + stateFile} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	loaded, err := LoadFromDisk(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "test", "validation"}, loaded.Names())
	assert.Equal(t, map[string]int{"train": 4, "test": 1, "validation": 0}, loaded.NumRows())

	train, ok := loaded.Split("train")
	require.True(t, ok)
	assert.Equal(t, []string{"label", "text"}, train.Columns())

	texts, err := train.Strings("text")
	require.NoError(t, err)
	assert.Equal(t, "what is life insurance?", texts[0])

	codes, err := train.Codes("label")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2, 1}, codes)

	feature, err := train.Feature("label")
	require.NoError(t, err)
	assert.Equal(t, []string{"auto insurance", "life insurance", "medicare insurance"}, feature.Names())

	st, err := ReadState(dir, "train")
	require.NoError(t, err)
	assert.Equal(t, "run-1", st.RunID)
	assert.Len(t, st.Fingerprint, 16)
}

func TestSaveLoadKeepsInt64Columns(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	test := dataset.NewSplit("test")
	require.NoError(t, test.AddInt64Column("index", []int64{12, 7, 1 << 40}))
	require.NoError(t, test.AddStringColumn("question_en", []string{"a?", "b?", "c?"}))
	d, err := dataset.NewDict(test)
	require.NoError(t, err)

	require.NoError(t, SaveToDisk(d, dir, "run-1"))

	var info SplitInfo
	require.NoError(t, readJSON(filepath.Join(dir, "test", infoFile), &info))
	assert.Equal(t, Feature{Type: featureValue, Dtype: dtypeInt64}, info.Columns[0].Feature)

	loaded, err := LoadFromDisk(dir)
	require.NoError(t, err)
	s, ok := loaded.Split("test")
	require.True(t, ok)
	kind, err := s.Kind("index")
	require.NoError(t, err)
	assert.Equal(t, dataset.KindInt64, kind)
	idx, err := s.Int64s("index")
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 7, 1 << 40}, idx)
}

func TestSaveToDiskReplacesDirectory(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	require.NoError(t, SaveToDisk(cleanedDict(t), dir, "run-2"))
	assert.NoFileExists(t, stale)
}

func TestLoadFromDiskErrors(t *testing.T) {
	_, err := LoadFromDisk(t.TempDir())
	assert.ErrorIs(t, err, ErrNotADataset)

	dir := t.TempDir()
	require.NoError(t, SaveToDisk(cleanedDict(t), dir, "run-3"))
	require.NoError(t, writeJSON(filepath.Join(dir, "test", stateFile), State{RunID: "run-3", Fingerprint: "0000000000000000"}))

	_, err = LoadFromDisk(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint")
}

func TestLocalMirrorPublishFetch(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shared := filepath.Join(root, "shared", "insuranceqa")
	require.NoError(t, os.MkdirAll(shared, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "leftover"), []byte("x"), 0o644))

	m, err := NewMirror(ctx, "file://"+shared, S3Options{}, nil)
	require.NoError(t, err)
	require.IsType(t, &LocalMirror{}, m)

	require.NoError(t, Publish(ctx, cleanedDict(t), filepath.Join(root, "scratch-a"), m, "run-4"))
	assert.NoFileExists(t, filepath.Join(shared, "leftover"))
	assert.FileExists(t, filepath.Join(shared, dictFile))

	loaded, err := Fetch(ctx, m, filepath.Join(root, "scratch-b"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"train": 4, "test": 1, "validation": 0}, loaded.NumRows())
}

func TestFetchMissingSharedDataset(t *testing.T) {
	m := NewLocalMirror(filepath.Join(t.TempDir(), "absent"), nil)
	_, err := Fetch(context.Background(), m, filepath.Join(t.TempDir(), "scratch"))
	assert.Error(t, err)
}

func TestNewMirrorRejectsUnknownScheme(t *testing.T) {
	_, err := NewMirror(context.Background(), "gs://bucket/data", S3Options{}, nil)
	assert.Error(t, err)

	_, err = NewMirror(context.Background(), "s3:///nobucket", S3Options{}, nil)
	assert.Error(t, err)

	m, err := NewMirror(context.Background(), "/mnt/shared/insuranceqa", S3Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///mnt/shared/insuranceqa", m.String())
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3MirrorPublishFetch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.objects["datasets/insuranceqa/old/data.parquet"] = []byte("stale")
	fake.objects["other/keep.txt"] = []byte("keep")

	m := NewS3Mirror(fake, "ml-data", "/datasets/insuranceqa/", nil)
	assert.Equal(t, "s3://ml-data/datasets/insuranceqa", m.String())

	require.NoError(t, Publish(ctx, cleanedDict(t), filepath.Join(t.TempDir(), "scratch"), m, "run-5"))
	assert.NotContains(t, fake.objects, "datasets/insuranceqa/old/data.parquet")
	assert.Contains(t, fake.objects, "other/keep.txt")
	assert.Contains(t, fake.objects, "datasets/insuranceqa/"+dictFile)
	assert.Contains(t, fake.objects, "datasets/insuranceqa/train/"+dataFile)

	loaded, err := Fetch(ctx, m, filepath.Join(t.TempDir(), "insurance"))
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "test", "validation"}, loaded.Names())
}

func TestS3MirrorDownloadEmptyPrefix(t *testing.T) {
	m := NewS3Mirror(newFakeS3(), "ml-data", "nothing/here", nil)
	err := m.Download(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotADataset)
}
