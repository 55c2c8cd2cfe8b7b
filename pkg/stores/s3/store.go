package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

const taskPrefix = "tasks/"

/*
Store persists task records as JSON objects in an S3-compatible bucket,
one object per task under the tasks/ prefix. It implements
stores.TaskStore for deployments that need task records to outlive the
process.
*/
type Store struct {
	conn *Conn
}

func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

func objectKey(id string) string {
	return taskPrefix + id + ".json"
}

func (store *Store) Get(
	ctx context.Context, id string,
) (*a2a.Task, *errors.RpcError) {
	obj, err := store.conn.client.GetObject(
		ctx, store.conn.bucket, objectKey(id), minio.GetObjectOptions{},
	)

	if err != nil {
		log.Error("failed to get task object", "task_id", id, "error", err)
		return nil, errors.ErrInternal.WithMessagef("failed to get task: %v", err)
	}

	defer obj.Close()

	buf, err := io.ReadAll(obj)

	if err != nil {
		if NotFound(err) {
			return nil, errors.ErrTaskNotFound
		}
		log.Error("failed to read task object", "task_id", id, "error", err)
		return nil, errors.ErrInternal.WithMessagef("failed to read task: %v", err)
	}

	var task a2a.Task

	if err := json.Unmarshal(buf, &task); err != nil {
		log.Error("failed to unmarshal task", "task_id", id, "error", err)
		return nil, errors.ErrInternal.WithMessagef("failed to unmarshal task: %v", err)
	}

	return &task, nil
}

func (store *Store) Save(
	ctx context.Context, task *a2a.Task,
) *errors.RpcError {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	data, err := json.Marshal(task)

	if err != nil {
		log.Error("failed to marshal task", "task_id", task.ID, "error", err)
		return errors.ErrInternal.WithMessagef("failed to marshal task: %v", err)
	}

	_, err = store.conn.client.PutObject(
		ctx,
		store.conn.bucket,
		objectKey(task.ID),
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	if err != nil {
		log.Error("failed to store task", "task_id", task.ID, "error", err)
		return errors.ErrInternal.WithMessagef("failed to store task: %v", err)
	}

	return nil
}

func (store *Store) Delete(
	ctx context.Context, id string,
) *errors.RpcError {
	err := store.conn.client.RemoveObject(
		ctx, store.conn.bucket, objectKey(id), minio.RemoveObjectOptions{},
	)

	if err != nil {
		if NotFound(err) {
			return errors.ErrTaskNotFound
		}
		log.Error("failed to delete task", "task_id", id, "error", err)
		return errors.ErrInternal.WithMessagef("failed to delete task: %v", err)
	}

	return nil
}

func (store *Store) List(
	ctx context.Context,
) ([]*a2a.Task, *errors.RpcError) {
	var tasks []*a2a.Task

	for info := range store.conn.client.ListObjects(
		ctx, store.conn.bucket, minio.ListObjectsOptions{Prefix: taskPrefix, Recursive: true},
	) {
		if info.Err != nil {
			log.Error("failed to list task objects", "error", info.Err)
			return nil, errors.ErrInternal.WithMessagef("failed to list tasks: %v", info.Err)
		}

		id := strings.TrimSuffix(strings.TrimPrefix(info.Key, taskPrefix), ".json")
		task, rpcErr := store.Get(ctx, id)

		if rpcErr != nil {
			return nil, rpcErr
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}
