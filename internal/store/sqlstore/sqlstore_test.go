package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"zenstyle/internal/storage/db"
	"zenstyle/internal/store"
	"zenstyle/internal/store/sqlstore"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(db.Options{
		FullPath: filepath.Join(t.TempDir(), "store.db"),
		Prefix:   "zen_",
	}, nil)
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, map[string]string{"styles": `{"website":{}}`, "skipThemingList": `["a.com"]`}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	got, err := s.Get(ctx, "styles", "skipThemingList", "missing")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(got) != 2 || got["skipThemingList"] != `["a.com"]` {
		t.Errorf("读取结果 = %v", got)
	}
}

func TestStore_OnChange(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var got []map[string]store.Change
	s.OnChange(func(changes map[string]store.Change, area string) {
		if area != store.AreaLocal {
			t.Errorf("area = %s", area)
		}
		got = append(got, changes)
	})

	_ = s.Set(ctx, map[string]string{"k": "1"})
	_ = s.Set(ctx, map[string]string{"k": "1"}) // 值未变化不通知
	_ = s.Set(ctx, map[string]string{"k": "2"})
	_ = s.Remove(ctx, "k", "missing")

	if len(got) != 3 {
		t.Fatalf("通知次数 = %d, want 3", len(got))
	}
	if got[0]["k"] != (store.Change{NewValue: "1"}) {
		t.Errorf("首次写入 = %+v", got[0]["k"])
	}
	if got[1]["k"] != (store.Change{OldValue: "1", NewValue: "2"}) {
		t.Errorf("覆盖写入 = %+v", got[1]["k"])
	}
	if c, ok := got[2]["k"]; !ok || c.OldValue != "2" || c.NewValue != "" {
		t.Errorf("删除 = %+v", got[2])
	}
	if _, ok := got[2]["missing"]; ok {
		t.Error("不存在的键删除不应通知")
	}
}
