// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供 AgentHive 的配置加载。

# 来源与优先级

默认值 → 配置文件 → 环境变量 → 验证器。配置文件按扩展名选择解析器：
.toml 使用 BurntSushi/toml，其余按 YAML 解析。环境变量以 AGENTHIVE
为前缀，按 env 标签逐级拼接，例如 AGENTHIVE_HIVE_MAX_CONCURRENT_TASKS。
time.Duration 字段接受 "30s" 形式，字符串切片接受逗号分隔。

# 分区

Server、Hive、Redis、Database、Checkpoint、Log、Telemetry。
*/
package config
