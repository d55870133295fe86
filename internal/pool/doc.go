// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 pool 提供按需扩容的 goroutine 工作池。

执行器把任务体提交到共享工作池，而不是为每个 Agent 常驻一个 goroutine。
Submit 非阻塞：队列满且 worker 达到上限时返回 ErrPoolFull；job 中的
panic 被恢复并转换为错误。
*/
package pool
