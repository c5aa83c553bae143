// Package lurcv evaluates land-use regression models with repeated,
// parallel k-fold cross-validation.
//
// A run splits a table of monitoring sites into folds once per iteration,
// trains one model per (iteration, fold) task on a worker pool, scores every
// task on its test fold and aggregates the per-task metrics into a summary.
//
// # Strategies
//
//   - Forward selection: greedy OLS feature selection on in-sample R² gain
//     (package linear).
//   - Random search: random forest hyperparameters sampled under a wall-clock
//     budget (packages search and ensemble).
//   - External GAM: a generalized additive model fitted by R's mgcv through
//     Rscript (package gam).
//
// # Quick Start
//
//	data, err := dataset.ReadCSVFile("sites.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch := crossval.NewOrchestrator(crossval.ForwardSelection(linear.DefaultThreshold),
//	    crossval.WithIterations(40),
//	    crossval.WithFolds(10),
//	)
//	summary, err := orch.Run(ctx, data, []string{"traffic", "industry"}, "pm_measurement")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report.WriteText(os.Stdout, summary)
//
// # Packages
//
//   - crossval: fold partitioning, task evaluation, orchestration and aggregation
//   - metrics: RMSE, R², adjusted R², FAC2 and deviance explained
//   - dataset: numeric tables, CSV input and spatial keys
//   - linear, tree, ensemble, search, gam: model strategies
//   - report: text, CSV, JSON and histogram output
//   - config: YAML and environment configuration
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// The lurcv command in cmd/lurcv wires all of the above.
package lurcv
