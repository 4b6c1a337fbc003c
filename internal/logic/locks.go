package logic

import (
	"sync"
)

// ProjectLocks 项目级写锁：同一项目的所有状态流转串行化，
// 避免链上操作确认期间第二个调用方竞争同一流转。读路径不加锁。
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewProjectLocks 创建项目锁管理器
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{
		locks: make(map[int64]*sync.Mutex),
	}
}

// Lock 锁定指定项目，返回解锁函数
func (l *ProjectLocks) Lock(projectId int64) func() {
	l.mu.Lock()
	lock, exists := l.locks[projectId]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[projectId] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
