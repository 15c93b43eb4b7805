/*
包 database 负责打开配置存储所用的数据库，并管理连接池。

# 概述

Open 按 config.DatabaseConfig 选择 GORM 方言（postgres、mysql、纯 Go 的
sqlite），启动时以指数退避重试建立连接，并应用连接池参数。PoolManager
封装 GORM 与 database/sql 的连接池，后台定时探活，把连接数上报给
StatsRecorder（通常为 metrics.Collector）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲连接数、最大打开连接数、连接生命周期与健康检查间隔。
  - PoolStats：友好格式的连接池统计信息。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 启动重试：数据库尚未就绪时按 ConnectRetries 退避重连。
  - 健康检查：后台 PingContext 探活，Close 时停止。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败等错误退避重试，
    用于默认配置切换这类需要原子性的写入。
*/
package database
