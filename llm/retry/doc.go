// Package retry 提供两类重试原语：
//
//   - Backoff：带指数退避的基础设施重试，用于数据库连接等启动期依赖
//   - WithRetry：无等待的有界重试，用于“生成 + 解析”整体循环
package retry
