package workflow

import (
	"context"
	"fmt"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/types"
)

// State 单次流水线执行的状态
type State string

const (
	StateNotStarted            State = "not_started"
	StateClassifying           State = "classifying"
	StateCustomizingExperience State = "customizing_experience"
	StateCustomizingProfile    State = "customizing_profile"
	StateReviewing             State = "reviewing"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// StageObserver 阶段完成回调，流式端点靠它推送增量进度
type StageObserver func(update *types.StageUpdate)

// Engine 流水线编排器：严格按 分类→经历定制→档案定制→终审 的顺序执行，
// 后一阶段的输入依赖前一阶段的输出。每次 Run 都是独立的，
// 不共享任何可变状态，提示词也在各次执行内实时拉取。
type Engine struct {
	classifier *agent.Classifier
	experience *agent.ExperienceCustomizer
	profile    *agent.ProfileCustomizer
	reviewer   *agent.Reviewer
}

// NewEngine 创建流水线编排器
func NewEngine(classifier *agent.Classifier, experience *agent.ExperienceCustomizer, profile *agent.ProfileCustomizer, reviewer *agent.Reviewer) *Engine {
	return &Engine{
		classifier: classifier,
		experience: experience,
		profile:    profile,
		reviewer:   reviewer,
	}
}

// Run 执行整条流水线。onStage 可为nil；非nil时在每个阶段完成后收到
// 该阶段的更新载荷。任一阶段的致命错误中止剩余阶段（分类阶段永不失败）。
func (e *Engine) Run(ctx context.Context, jd types.JobDescription, personalInfo types.PersonalInfo, onStage StageObserver) (*types.WorkflowResult, error) {
	startTime := time.Now()
	state := StateNotStarted
	stageResults := make(map[types.StageKey]*types.StageUpdate)
	var totalUsage types.TokenUsage

	notify := func(update *types.StageUpdate) {
		stageResults[update.Stage] = update
		totalUsage = totalUsage.Add(update.Usage)
		if onStage != nil {
			onStage(update)
		}
	}

	// 阶段一：角色分类，失败时降级为启发式结果，不会中止流水线
	state = StateClassifying
	stageStart := time.Now()
	classification := e.classifier.Classify(ctx, jd)
	notify(&types.StageUpdate{
		Stage:      types.StageClassifier,
		DurationMs: time.Since(stageStart).Milliseconds(),
		Usage:      classification.Usage,
		RoleType:   classification.RoleType,
		Keywords:   classification.Keywords,
		Insights:   classification.Insights,
	})

	// 阶段二：工作经历定制
	state = StateCustomizingExperience
	stageStart = time.Now()
	workExperience, expUsage, err := e.experience.Customize(ctx, classification, jd.Title, nil)
	if err != nil {
		state = StateFailed
		logger.Error().Err(err).Str("state", string(state)).Msg("流水线在经历定制阶段失败")
		return nil, fmt.Errorf("经历定制阶段失败: %w", err)
	}
	notify(&types.StageUpdate{
		Stage:      types.StageExperience,
		DurationMs: time.Since(stageStart).Milliseconds(),
		Usage:      expUsage,
		WorkExp:    workExperience,
	})

	// 阶段三：个人信息定制，基于上一阶段的经历叙述
	state = StateCustomizingProfile
	stageStart = time.Now()
	customizedProfile, profileUsage, err := e.profile.Customize(ctx, workExperience, personalInfo.Clone(), classification)
	if err != nil {
		state = StateFailed
		logger.Error().Err(err).Str("state", string(state)).Msg("流水线在个人信息定制阶段失败")
		return nil, fmt.Errorf("个人信息定制阶段失败: %w", err)
	}
	notify(&types.StageUpdate{
		Stage:      types.StageProfile,
		DurationMs: time.Since(stageStart).Milliseconds(),
		Usage:      profileUsage,
		Profile:    customizedProfile,
	})

	// 阶段四：终审校对，产出最终的档案与经历
	state = StateReviewing
	stageStart = time.Now()
	review, err := e.reviewer.Review(ctx, workExperience, customizedProfile, personalInfo, jd, classification)
	if err != nil {
		state = StateFailed
		logger.Error().Err(err).Str("state", string(state)).Msg("流水线在终审阶段失败")
		return nil, fmt.Errorf("终审阶段失败: %w", err)
	}
	notify(&types.StageUpdate{
		Stage:      types.StageReviewer,
		DurationMs: time.Since(stageStart).Milliseconds(),
		Usage:      review.Usage,
		WorkExp:    review.WorkExperience,
		Profile:    review.PersonalInfo,
	})

	state = StateCompleted
	result := &types.WorkflowResult{
		RoleClassification: classification.RoleType,
		PersonalInfo:       review.PersonalInfo,
		WorkExperience:     review.WorkExperience,
		ProcessingTimeMs:   time.Since(startTime).Milliseconds(),
		StageResults:       stageResults,
		TokenUsage:         totalUsage,
	}

	logger.Info().
		Str("state", string(state)).
		Str("role_classification", result.RoleClassification).
		Int64("processing_ms", result.ProcessingTimeMs).
		Int("total_tokens", result.TokenUsage.TotalTokens).
		Msg("流水线执行完成")

	return result, nil
}
