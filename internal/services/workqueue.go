// internal/services/workqueue.go
package services

import (
	"context"
	"sync"
)

// WorkQueue 有界并发的任务执行器
// 面向外部生成服务的限流策略在这里显式建模：
// 并发度1时任务严格按提交顺序一个接一个执行，调大并发度不影响正确性
type WorkQueue struct {
	semaphore chan struct{}
}

// NewWorkQueue 创建执行器，concurrency小于1时按1处理
func NewWorkQueue(concurrency int) *WorkQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkQueue{
		semaphore: make(chan struct{}, concurrency),
	}
}

// Concurrency 返回并发上限
func (q *WorkQueue) Concurrency() int {
	return cap(q.semaphore)
}

// RunAll 按提交顺序派发所有任务并等待全部完成
// ctx取消后不再派发新任务，已开始的任务自行响应ctx
func (q *WorkQueue) RunAll(ctx context.Context, tasks []func(ctx context.Context)) {
	var wg sync.WaitGroup

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case q.semaphore <- struct{}{}:
			// 抢到的槽位可能来自取消任务释放的信号量，取消优先于派发
			if ctx.Err() != nil {
				<-q.semaphore
				wg.Wait()
				return
			}
		}

		wg.Add(1)
		go func(task func(ctx context.Context)) {
			defer wg.Done()
			defer func() { <-q.semaphore }()
			task(ctx)
		}(task)
	}

	wg.Wait()
}
