package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server  *asynq.Server
	log     *logrus.Entry
	persist *HistoryPersistHandler
	prune   *HistoryPruneHandler
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, persist *HistoryPersistHandler, prune *HistoryPruneHandler, logger *logrus.Logger) *WorkerServer {
	if persist == nil || prune == nil {
		panic("task handlers cannot be nil for WorkerServer")
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).WithField("component", "worker_server").Errorf("Task failed: %v", err)
			}),
			Logger:   logEntry,
			LogLevel: asynq.WarnLevel,
		},
	)

	return &WorkerServer{server: server, log: logEntry, persist: persist, prune: prune}
}

// Mux 返回注册了所有任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeHistoryPersist, ws.persist.ProcessTask)
	mux.HandleFunc(tasks.TypeHistoryPrune, ws.prune.ProcessTask)
	return mux
}

// Start 启动 Worker Server 的处理 goroutine 后立即返回
func (ws *WorkerServer) Start() error {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Start(ws.Mux()); err != nil {
		return fmt.Errorf("could not start worker server: %w", err)
	}
	return nil
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
