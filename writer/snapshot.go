// Package writer archives finished dashboard snapshots to S3 as parquet
// files, hive-partitioned by date for downstream analytics.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// exposureRecord defines the parquet schema for one token exposure row of
// a snapshot.
type exposureRecord struct {
	CycleID       string  `parquet:"name=cycle_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Symbol        string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalDelta    float64 `parquet:"name=total_delta, type=DOUBLE"`
	TotalNotional float64 `parquet:"name=total_notional, type=DOUBLE"`
	FundingPnL    float64 `parquet:"name=funding_pnl, type=DOUBLE"`
	WindowDays    int32   `parquet:"name=window_days, type=INT32"`
}

// memory-backed parquet sink, the file is assembled fully in RAM and
// shipped to S3 in one PutObject.
type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// SnapshotWriter uploads one parquet file per refresh cycle containing the
// per-token exposure rollups.
type SnapshotWriter struct {
	cfg      *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewSnapshotWriter initializes the writer with AWS credentials from the
// configuration, falling back to the default credential chain.
func NewSnapshotWriter(cfg *appconfig.Config) (*SnapshotWriter, error) {
	ctx := context.Background()
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})
	return &SnapshotWriter{
		cfg:      cfg,
		s3Client: s3Client,
		log:      logger.GetLogger(),
	}, nil
}

// ArchiveSnapshot writes the snapshot's token exposures as one parquet
// object. Snapshots without exposures are skipped.
func (w *SnapshotWriter) ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || len(snap.TokenExposures) == 0 {
		return nil
	}

	data, err := w.createParquet(snap)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	key := w.s3Key(snap)
	if err := w.upload(ctx, key, data); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}

	w.log.WithComponent("snapshot_writer").WithFields(logger.Fields{
		"s3_key":   key,
		"cycle_id": snap.CycleID,
		"records":  len(snap.TokenExposures),
		"bytes":    len(data),
	}).Info("snapshot archived")
	return nil
}

func (w *SnapshotWriter) createParquet(snap *model.Snapshot) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(exposureRecord), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, exposure := range snap.TokenExposures {
		rec := exposureRecord{
			CycleID:       snap.CycleID,
			Timestamp:     snap.Timestamp.UnixMilli(),
			Symbol:        exposure.Symbol,
			TotalDelta:    exposure.TotalDelta,
			TotalNotional: exposure.TotalNotional,
			FundingPnL:    exposure.FundingPnL,
			WindowDays:    int32(snap.WindowDays),
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mw.Bytes(), nil
}

func (w *SnapshotWriter) upload(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	_, err := w.s3Client.PutObject(ctx, input)
	return err
}

func (w *SnapshotWriter) s3Key(snap *model.Snapshot) string {
	timestamp := snap.Timestamp
	parts := []string{
		"exposures",
		fmt.Sprintf("year=%04d", timestamp.Year()),
		fmt.Sprintf("month=%02d", int(timestamp.Month())),
		fmt.Sprintf("day=%02d", timestamp.Day()),
		fmt.Sprintf("hour=%02d", timestamp.Hour()),
	}
	filename := fmt.Sprintf("snapshot_%s_%d.parquet", snap.CycleID, timestamp.UnixNano())
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}
