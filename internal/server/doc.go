/*
包 server 管理 HTTP 服务器的生命周期：非阻塞启动、优雅关闭与异步错误传播。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Shutdown、Run。
  - Config：监听地址、读写超时、空闲超时、最大请求头与优雅关闭超时。

# 用法

Run 阻塞直到 ctx 取消或服务异常退出，随后在 ShutdownTimeout 内排空请求。
多个 Manager（API 与 /metrics）可放进同一个 errgroup 中运行：

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(ctx) })
	g.Go(func() error { return metrics.Run(ctx) })
	return g.Wait()

写超时需覆盖最长的异步出图轮询，否则客户端会在任务完成前被断开。
*/
package server
