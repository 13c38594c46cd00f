package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/nutrisport/internal/gateway"
	"github.com/hitoshi/nutrisport/internal/model"
)

// 入力値の検証エラー
var (
	ErrInvalidID      = errors.New("invalid id")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownPanel   = errors.New("unknown resource")
)

// Panel はリソース種別を名前で扱うための型を持たない操作セット。
// CLIとコンソールサーバーは文字列のIDとJSONのペイロードでこれを呼ぶ。
type Panel interface {
	Spec() gateway.Spec
	List(ctx context.Context) (any, error)
	Items() any
	Get(ctx context.Context, id string) (any, error)
	Create(ctx context.Context, payload []byte) (any, Notice, error)
	Update(ctx context.Context, id string, payload []byte) (any, Notice, error)
	Delete(ctx context.Context, id string) (Notice, error)
}

// panel はCollectionをPanelとして公開する。
type panel[T any, F any, K gateway.ID] struct {
	c *Collection[T, F, K]
}

// AsPanel はCollectionをPanelに変換する。
func AsPanel[T any, F any, K gateway.ID](c *Collection[T, F, K]) Panel {
	return panel[T, F, K]{c: c}
}

func (p panel[T, F, K]) Spec() gateway.Spec { return p.c.Spec() }

func (p panel[T, F, K]) Items() any { return p.c.Items() }

func (p panel[T, F, K]) List(ctx context.Context) (any, error) {
	return p.c.Refresh(ctx)
}

func (p panel[T, F, K]) Get(ctx context.Context, id string) (any, error) {
	key, err := parseID[K](id)
	if err != nil {
		return nil, err
	}
	return p.c.Get(ctx, key)
}

func (p panel[T, F, K]) Create(ctx context.Context, payload []byte) (any, Notice, error) {
	form, err := decodeForm[F](payload)
	if err != nil {
		return nil, Notice{}, err
	}
	return p.c.Create(ctx, form)
}

func (p panel[T, F, K]) Update(ctx context.Context, id string, payload []byte) (any, Notice, error) {
	key, err := parseID[K](id)
	if err != nil {
		return nil, Notice{}, err
	}
	form, err := decodeForm[F](payload)
	if err != nil {
		return nil, Notice{}, err
	}
	return p.c.Update(ctx, key, form)
}

func (p panel[T, F, K]) Delete(ctx context.Context, id string) (Notice, error) {
	key, err := parseID[K](id)
	if err != nil {
		return Notice{}, err
	}
	return p.c.Delete(ctx, key)
}

func parseID[K gateway.ID](id string) (K, error) {
	key, err := gateway.ParseID[K](id)
	if err != nil {
		return key, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return key, nil
}

// decodeForm はJSONオブジェクトをフォーム型へデコードする。
// キーの大文字小文字は区別しない（camelCase・PascalCaseの両方を受け付ける）。
func decodeForm[F any](payload []byte) (F, error) {
	var form F
	if !gjson.ValidBytes(payload) {
		return form, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	if !gjson.ParseBytes(payload).IsObject() {
		return form, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(payload, &form); err != nil {
		return form, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return form, nil
}

// Board は全リソース種別のPanelを名前で引けるようにまとめたもの。
type Board struct {
	panels map[string]Panel
}

// NewBoard はカタログの全リソースについてCollectionを作成する。
func NewBoard(catalog *gateway.Catalog, logger *slog.Logger) *Board {
	b := &Board{panels: make(map[string]Panel)}
	b.add(AsPanel(NewCollection[model.Nutrition, model.NutritionForm, string](catalog.Nutrition, logger)))
	b.add(AsPanel(NewCollection[model.Training, model.TrainingForm, int](catalog.Training, logger)))
	b.add(AsPanel(NewCollection[model.TrainingPlan, model.TrainingPlanForm, int](catalog.TrainingPlan, logger)))
	b.add(AsPanel(NewCollection[model.Exercise, model.ExerciseForm, int](catalog.Exercise, logger)))
	b.add(AsPanel(NewCollection[model.SportsProfile, model.SportsProfileForm, int](catalog.SportsProfile, logger)))
	b.add(AsPanel(NewCollection[model.Statistic, model.StatisticForm, int](catalog.Statistic, logger)))
	b.add(AsPanel(NewCollection[model.FoodProgram, model.FoodProgramForm, int](catalog.FoodProgram, logger)))
	return b
}

func (b *Board) add(p Panel) {
	b.panels[p.Spec().Name] = p
}

// Panel は名前に対応するPanelを返す。
func (b *Board) Panel(name string) (Panel, error) {
	p, ok := b.panels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPanel, name)
	}
	return p, nil
}

// Names は登録されているリソース名を昇順で返す。
func (b *Board) Names() []string {
	names := make([]string, 0, len(b.panels))
	for name := range b.panels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
