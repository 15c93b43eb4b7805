/*
# 概述

包 providers 是供应商适配层的公共基础：统一的 Adapter 接口、按供应商家族
注册的 Registry，以及所有适配器共享的 HTTP 调用与错误映射。

# 核心类型

  - Adapter：CompleteText / GenerateImage 两个操作的统一接口
  - Registry：ProviderFamily → Adapter，每个家族一个策略
  - HTTPClient：Bearer 鉴权、JSON 编解码、非 2xx 映射为 PROVIDER_REQUEST
  - TextRequest / ImageRequest：与供应商无关的请求描述

# 子包

  - openaicompat：OpenAI 兼容接口（含 siliconflow 图像方言）
  - dashscope：阿里云百炼异步文生图
  - modelscope：魔搭异步文生图
*/
package providers
