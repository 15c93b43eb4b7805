/*
Package structured 从模型自由文本中恢复结构化的卡片与提示词。

# 恢复流水线

每一阶段仅在上一阶段解析失败时执行：

 1. extract：首个 fenced 代码块；否则首个平衡的顶层 {…} / […] 区域
 2. strip_control：剔除 \n \r \t 以外的控制字符
 3. escape_strings：字符串值内的字面换行、制表、回车重新转义
 4. repair_image_prompt：修复 imagePrompt 字段内未转义的引号

全部失败时返回 RECOVERY_PARSE 错误，错误链中携带 *AttemptError 诊断信息。

# 形状匹配

解析成功后按固定顺序尝试命名匹配器（top_level_array、key:cards、
key:outline、key:pages、first_array_property），返回 ShapeMatch。
first_array_property 按文档中的键顺序查找，而不是 map 顺序。

# 归一化

pageNumber 缺省为位置序号；points 逐项强制为 {emoji, label, detail}；
缺失的 imagePrompt 按 pageType 模板合成并标记 imagePromptAutoGenerated。
*/
package structured
