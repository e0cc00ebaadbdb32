package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mybranchfun/mybranch/internal/config"
	"github.com/mybranchfun/mybranch/internal/github"
	"github.com/mybranchfun/mybranch/internal/identity"
	"github.com/mybranchfun/mybranch/internal/logging"
	"github.com/mybranchfun/mybranch/internal/proxy"
	"github.com/mybranchfun/mybranch/internal/server"
	"github.com/mybranchfun/mybranch/internal/stats"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mybranch-api",
		Short: "mybranch.fun branch-tree backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("github-owner", defaults.GetString("github.owner"), "Tree repository owner")
	cmd.PersistentFlags().String("github-repo", defaults.GetString("github.repo"), "Tree repository name")
	cmd.PersistentFlags().String("github-token", "", "GitHub access token (overrides env)")
	cmd.PersistentFlags().String("github-trunk", defaults.GetString("github.trunk"), "Trunk branch used as the ahead-count baseline")
	cmd.PersistentFlags().String("root-identity", defaults.GetString("root.identity"), "Canonical spelling of the root profile branch")
	cmd.PersistentFlags().Int("github-budget", defaults.GetInt("github.budget_per_minute"), "Upstream API calls allowed per minute")
	cmd.PersistentFlags().Int("stats-concurrency", defaults.GetInt("stats.concurrency"), "Concurrent per-branch lookups during stats aggregation")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "github.owner", "github-owner")
	bindFlag(cmd, "github.repo", "github-repo")
	bindFlag(cmd, "github.token", "github-token")
	bindFlag(cmd, "github.trunk", "github-trunk")
	bindFlag(cmd, "root.identity", "root-identity")
	bindFlag(cmd, "github.budget_per_minute", "github-budget")
	bindFlag(cmd, "stats.concurrency", "stats-concurrency")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	gateway, err := github.NewClient(github.Config{
		Owner:  appConfig.GitHubOwner,
		Repo:   appConfig.GitHubRepo,
		Token:  appConfig.GitHubToken,
		Trunk:  appConfig.TrunkBranch,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	resolver, err := identity.NewResolver(identity.Config{
		RootIdentity: appConfig.RootIdentity,
	})
	if err != nil {
		return err
	}

	budget := github.NewBudget(appConfig.BudgetPerMinute, appConfig.BudgetPerMinute, time.Now)

	aggregator, err := stats.NewAggregator(stats.Config{
		Gateway:      gateway,
		Trunk:        appConfig.TrunkBranch,
		RootIdentity: appConfig.RootIdentity,
		Budget:       budget,
		Concurrency:  appConfig.StatsConcurrency,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	proxyService, err := proxy.NewService(proxy.Config{
		Fetcher: gateway,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Gateway:   gateway,
		Stats:     aggregator,
		Proxy:     proxyService,
		Resolver:  resolver,
		RepoOwner: appConfig.GitHubOwner,
		RepoName:  appConfig.GitHubRepo,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("repository", appConfig.GitHubOwner+"/"+appConfig.GitHubRepo))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
