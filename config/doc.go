// Package config 提供 cardflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 可选的 .env 文件用于在本地开发时补充环境变量。
package config
