// Package s3archive 将被保留策略裁剪的历史操作以 JSON Lines 格式归档到 S3。
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"collaborative-board/internal/domain"
)

// PutObjectAPI 是归档所需的 S3 客户端子集，*s3.Client 满足该接口
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ActionArchive 是 ActionArchive 接口的 S3 实现
type S3ActionArchive struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3ActionArchive 创建 S3ActionArchive 实例
func NewS3ActionArchive(client PutObjectAPI, bucket, prefix string) *S3ActionArchive {
	if client == nil {
		panic("s3 client cannot be nil for S3ActionArchive")
	}
	if bucket == "" {
		panic("bucket cannot be empty for S3ActionArchive")
	}
	return &S3ActionArchive{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey 返回一批操作的对象 key: <prefix><board>/<first seq>-<last seq>.jsonl
// seq 补零到 20 位，按字典序列出时即为时间顺序。
func (a *S3ActionArchive) ObjectKey(boardID string, first, last uint64) string {
	return fmt.Sprintf("%s%s/%020d-%020d.jsonl", a.prefix, boardID, first, last)
}

// Archive 写入一批按 seq 升序排列的操作
func (a *S3ActionArchive) Archive(ctx context.Context, boardID string, actions []domain.Action) (string, error) {
	if len(actions) == 0 {
		return "", errors.New("s3: nothing to archive")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range actions {
		if err := enc.Encode(&actions[i]); err != nil {
			return "", fmt.Errorf("s3: failed to encode action seq %d: %w", actions[i].Seq, err)
		}
	}
	first, last := actions[0].Seq, actions[len(actions)-1].Seq
	key := a.ObjectKey(boardID, first, last)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"board-id":     boardID,
			"action-count": strconv.Itoa(len(actions)),
			"archive-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: archive upload failed for board %s: %w", boardID, err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}
