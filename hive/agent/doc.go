// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agent 定义蜂群中的自治工作单元模型。

# 概述

Agent 持有能力列表、能量、二维蜂群坐标与记忆（经验历史、模式权重、
社交信任）。所有数值在每次变更时钳制到合法区间：熟练度与学习率位于
[0,1]，能量位于 [0,100]，模式权重位于 [-1,1]。

# 核心类型

  - Agent：工作单元本体，注册表持有权威副本，外部只拿到 Clone。
  - Type / Kind：worker、coordinator、specialist(tag)、learner。
  - Capability：命名技能，含熟练度与学习率。
  - CreateRequest / Spec：JSON 创建请求与校验后的封闭配置。

# 主要能力

  - 经验学习：LearnFromExperience 记录经验（上限 1000）并强化模式权重。
  - 蜂群运动：UpdatePosition 按 boids 规则更新坐标，SwarmCenter / Cohesion
    计算群体中心与紧密度。
  - 请求校验：ParseCreateRequest 在任何状态变更之前拒绝非法类型与越界数值。
*/
package agent
