package record

import (
	"sort"
	"strings"
	"testing"
)

// 嵌入的迁移文件是表结构的唯一来源,必须能解析出有序的可执行语句。
func TestLoadMigrationFiles(t *testing.T) {
	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("loadMigrationFiles: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("迁移文件数量 = %d, 至少应有建表与 export_path 两个版本", len(files))
	}
	if !sort.SliceIsSorted(files, func(i, j int) bool { return files[i].version < files[j].version }) {
		t.Fatal("迁移未按版本排序")
	}

	first := strings.Join(files[0].statements, "\n")
	if !strings.Contains(first, "CREATE TABLE IF NOT EXISTS habit_records") {
		t.Fatalf("首个迁移应创建 habit_records 表: %q", first)
	}
	var sawExportPath bool
	for _, f := range files[1:] {
		if strings.Contains(strings.Join(f.statements, "\n"), "export_path") {
			sawExportPath = true
		}
	}
	if !sawExportPath {
		t.Fatal("后续迁移应补充 export_path 列")
	}
}

func TestSplitSQLStatements(t *testing.T) {
	statements := splitSQLStatements(`-- 注释行
CREATE TABLE a (id INT);
-- 只有注释
;
ALTER TABLE a ADD COLUMN b INT;`)
	if len(statements) != 2 {
		t.Fatalf("语句数量 = %d, want 2: %q", len(statements), statements)
	}
	if !strings.HasSuffix(statements[0], "CREATE TABLE a (id INT)") {
		t.Errorf("statements[0] = %q", statements[0])
	}
	if statements[1] != "ALTER TABLE a ADD COLUMN b INT" {
		t.Errorf("statements[1] = %q", statements[1])
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_create_habit_records.sql": "0001",
		"0002_add_export_path.sql":      "0002",
		"0003.sql":                      "0003",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Errorf("parseMigrationVersion(%q) = %q, want %q", name, got, want)
		}
	}
}
