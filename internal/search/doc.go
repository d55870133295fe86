// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 search 提供基于 bleve 内存索引的任务全文检索。

标题与描述使用 standard 分析器分词，类型、优先级与所需能力名作为关键字
精确匹配。查询包含字段限定（如 "type:analysis"）时按 bleve 查询串语法解析，
否则在标题与描述上做匹配，标题权重加倍。
*/
package search
