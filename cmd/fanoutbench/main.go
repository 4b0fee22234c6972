// fanoutbench 测量结算通知扇出的端到端耗时
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
	"github.com/d60-Lab/vertex-tips/internal/service"
	"github.com/d60-Lab/vertex-tips/pkg/database"
	"github.com/d60-Lab/vertex-tips/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(float64(len(xs)) * p)
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init("warn", "console"); err != nil {
		panic(err)
	}
	db := must(database.InitDB(cfg))
	defer database.Close(db)

	followers := envInt("FOLLOWERS", 5000)
	repeat := envInt("REPEAT", 10)
	cfg.Notifier.PageSize = envInt("PAGE", cfg.Notifier.PageSize)
	cfg.Notifier.Workers = envInt("WORKERS", cfg.Notifier.Workers)

	preds := repository.NewPredictionRepository(db)
	follows := repository.NewFollowRepository(db)
	notes := repository.NewNotificationRepository(db)
	notifier := service.NewNotifier(follows, notes, nil, cfg.Notifier)
	notifier.Start()
	svc := service.NewPredictionService(preds, follows, notifier)

	ctx := context.Background()
	// 用户 ID 从一个较大的偏移开始，避免与真实用户混淆
	const userBase = 1_000_000

	durations := make([]time.Duration, 0, repeat)
	for r := 0; r < repeat; r++ {
		p := &model.Prediction{
			MatchName:   fmt.Sprintf("bench-%d-%d", time.Now().UnixNano(), r),
			Sport:       "bench",
			Odds:        2,
			EventDate:   time.Now().Add(24 * time.Hour).UTC(),
			TipsterName: "fanoutbench",
			Status:      model.StatusPending,
		}
		if err := preds.Create(ctx, p); err != nil {
			panic(err)
		}
		rows := make([]model.Follow, followers)
		for i := range rows {
			rows[i] = model.Follow{UserID: uint(userBase + i), PredictionID: p.ID}
		}
		if err := db.CreateInBatches(rows, 500).Error; err != nil {
			panic(err)
		}

		st := time.Now()
		if _, err := svc.SetStatus(ctx, p.ID, model.StatusWon); err != nil {
			panic(err)
		}
		if err := notifier.Flush(ctx); err != nil {
			panic(err)
		}
		durations = append(durations, time.Since(st))
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = notifier.Stop(stopCtx)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	avg := sum / time.Duration(len(durations))
	fmt.Printf("FOLLOWERS=%d REPEAT=%d PAGE=%d WORKERS=%d\n", followers, repeat, cfg.Notifier.PageSize, cfg.Notifier.Workers)
	fmt.Printf("settle+fanout: avg=%v p95=%v p99=%v\n", avg, pct(durations, 0.95), pct(durations, 0.99))
	fmt.Printf("throughput: %.0f notifications/s\n", float64(followers)/avg.Seconds())
}
