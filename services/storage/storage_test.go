package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

var itemTime = time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)

func blob(name, content string) models.AttachmentBlob {
	return models.AttachmentBlob{Name: name, Content: []byte(content), ItemTimestamp: itemTime}
}

func TestLocalBlobSink_ResetClearsStaleFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "file_downloads")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.csv"), []byte("a"), 0o644))

	sink := NewLocalBlobSink(logger.NewNopLogger())
	require.NoError(t, sink.Reset(context.Background(), dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalBlobSink_ResetCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	require.NoError(t, NewLocalBlobSink(logger.NewNopLogger()).Reset(context.Background(), dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalBlobSink_StoreNamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalBlobSink(logger.NewNopLogger())
	ctx := context.Background()
	require.NoError(t, sink.Reset(ctx, dir))

	first, err := sink.Store(ctx, blob("Orders Q1.xlsx", "one"), dir)
	require.NoError(t, err)
	second, err := sink.Store(ctx, blob("Orders Q1.xlsx", "two"), dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2024-05-01_09-15-00_Orders Q1_1.xlsx"), first.Path)
	assert.Equal(t, filepath.Join(dir, "2024-05-01_09-15-00_Orders Q1_2.xlsx"), second.Path)
	assert.Equal(t, "Orders Q1.xlsx", first.OriginalName)
	assert.True(t, first.ItemTimestamp.Equal(itemTime))

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, sink.Reset(ctx, dir))
	again, err := sink.Store(ctx, blob("orders.csv", "x"), dir)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01_09-15-00_orders_1.csv", filepath.Base(again.Path))
}

func TestLocalBlobSink_StoreSanitizesName(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalBlobSink(logger.NewNopLogger())

	stored, err := sink.Store(context.Background(), blob("../../etc/re$port:*.csv", "x"), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(stored.Path))
	assert.Equal(t, "2024-05-01_09-15-00_report_1.csv", filepath.Base(stored.Path))
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *mockStorage) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockStorage) GetPublicURL(key string) string {
	return m.Called(key).String(0)
}

func TestArchivingBlobSink_MirrorsStoredFiles(t *testing.T) {
	dir := t.TempDir()
	storage := &mockStorage{}
	sink := NewArchivingBlobSink(NewLocalBlobSink(logger.NewNopLogger()), storage, logger.NewNopLogger())

	b := blob("orders.csv", "order_id\n1\n")
	b.ContentType = "text/csv"
	storage.On("Upload", mock.Anything, "attachments/2024/05/01/2024-05-01_09-15-00_orders_1.csv", b.Content, "text/csv").
		Return(nil).Once()

	stored, err := sink.Store(context.Background(), b, dir)
	require.NoError(t, err)
	assert.FileExists(t, stored.Path)
	storage.AssertExpectations(t)
}

func TestArchivingBlobSink_UploadFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	storage := &mockStorage{}
	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket gone"))
	sink := NewArchivingBlobSink(NewLocalBlobSink(logger.NewNopLogger()), storage, logger.NewNopLogger())

	stored, err := sink.Store(context.Background(), blob("orders.csv", "x"), dir)
	require.NoError(t, err)
	assert.FileExists(t, stored.Path)
}

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) Upload(ctx context.Context, input s3manager.UploadInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *mockS3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockS3Client) Delete(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

func TestObjectStorageService(t *testing.T) {
	client := &mockS3Client{}
	svc := NewStorageService(client, StorageConfig{BucketName: "attachments", CDNDomain: "cdn.example.com"})
	ctx := context.Background()

	client.On("Upload", mock.Anything, mock.MatchedBy(func(in s3manager.UploadInput) bool {
		return aws.StringValue(in.Bucket) == "attachments" &&
			aws.StringValue(in.Key) == "a/b.csv" &&
			aws.StringValue(in.ContentType) == "text/csv"
	})).Return(nil).Once()
	require.NoError(t, svc.Upload(ctx, "a/b.csv", []byte("x"), "text/csv"))

	client.On("Download", mock.Anything, "attachments", "a/b.csv").Return([]byte("x"), nil).Once()
	data, err := svc.Download(ctx, "a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	client.On("Delete", mock.Anything, "attachments", "a/b.csv").Return(nil).Once()
	require.NoError(t, svc.Delete(ctx, "a/b.csv"))

	assert.Equal(t, "https://cdn.example.com/a/b.csv", svc.GetPublicURL("a/b.csv"))
	client.AssertExpectations(t)
}
