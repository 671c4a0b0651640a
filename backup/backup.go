/*
Package backup implements the nightly scheduler's backup task (spec
§4.7 step 1): export every client collection the core touches to a
durable object store, keyed by timestamp, best-effort and fully
asynchronous to the billing commit path (spec §6.3).

Grounded on dafibh-fortuna-backend and vidinfra-flexprice, both of
which use aws-sdk-go-v2/service/s3 for object storage; the teacher has
no backup path at all (its SQLite file is the only durable artifact),
so this package is new rather than adapted.
*/
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/store"
)

// ObjectStore is the narrow surface the backup task needs from an
// object-storage client, so callers never import the AWS SDK directly.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}

// S3ObjectStore adapts an *s3.Client to ObjectStore.
type S3ObjectStore struct {
	Client *s3.Client
}

func NewS3ObjectStore(client *s3.Client) *S3ObjectStore {
	return &S3ObjectStore{Client: client}
}

func (o *S3ObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	_, err := o.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return coreerr.Wrap(coreerr.Transient, "backup: put object failed", err)
	}
	return nil
}

// Task exports every document under "clients/" to the object store as
// one JSON object per run, covering all clients.
type Task struct {
	Store     store.Store
	Objects   ObjectStore
	Bucket    string
	KeyPrefix string
}

func NewTask(s store.Store, objects ObjectStore, bucket, keyPrefix string) *Task {
	return &Task{Store: s, Objects: objects, Bucket: bucket, KeyPrefix: keyPrefix}
}

// Export dumps every document under "clients/" into one JSON object
// named by timestamp. Any list, read or upload error is returned and no
// object is written; the scheduler records that error and moves on to
// its next task (spec §4.7 "On failure the task records an error but
// does not abort subsequent tasks").
func (t *Task) Export(ctx context.Context, runTimestamp string) (objectKey string, documentCount int, err error) {
	listing, err := t.Store.List(ctx, "clients", store.ListOptions{})
	if err != nil {
		return "", 0, err
	}

	dump := make(map[string]json.RawMessage, len(listing.Paths))
	for _, p := range listing.Paths {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		var raw json.RawMessage
		exists, getErr := t.Store.Get(ctx, p, &raw)
		if getErr != nil {
			return "", 0, getErr
		}
		if !exists {
			continue
		}
		dump[string(p)] = raw
	}

	body, err := json.Marshal(dump)
	if err != nil {
		return "", 0, coreerr.Wrap(coreerr.Permanent, "backup: marshal dump failed", err)
	}

	key := fmt.Sprintf("%s/%s.json", t.KeyPrefix, runTimestamp)
	if err := t.Objects.PutObject(ctx, t.Bucket, key, body); err != nil {
		return "", 0, err
	}
	return key, len(dump), nil
}
