// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 database 管理归档库的连接池。

[Pool] 在已打开的 gorm 连接上应用池参数 (最大连接数、空闲连接数、
连接生命周期), 可选地周期探活并记录池统计, 关闭时停止探活并释放
底层连接。归档层持有 Pool 而非裸 *sql.DB, 探活与统计口径在此统一。
*/
package database
