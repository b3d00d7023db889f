// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 quality 实现管线输出的质量门控：批判评审与单次辩论复核。

# 概述

[Critic] 对单个步骤的输出做确定性评审：按目标类别（结构化查询、
洞察、图表、通用）分派到对应规则集，产出检查项、问题、优点与改进
建议，再按固定评分表折算质量分、放行结论与置信档位。评审不调用
模型，相同输入必得相同结论。

[Resolver] 是门控的第二道，也是最后一道：评审未放行且计划里含
debate 步骤时，控制权交给它执行恰好一次辩论式复核。模型要么维持
原评审（upheld），要么给出修正分数（revised）；模型不可用或裁决
不可解析时记为 unresolved，原评审结论原样生效。复核绝不循环。

# 评分表

问题数 I 与优点数 S 按固定表折算：I=0 且 S>0 得 0.95；I≤1 且 S≥2
得 0.85；I≤2 且 S≥1 得 0.70；其余为 max(0.3, 0.8-0.15*I)。
放行要求分数不低于 0.75 且问题不超过 1 个。
*/
package quality
