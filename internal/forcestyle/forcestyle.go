// Package forcestyle 为没有专属样式的站点生成通用透明样式
package forcestyle

import (
	"strings"

	"zenstyle/pkg/domain"

	"github.com/aymerick/douceur/css"
)

// block 一组共享声明的选择器
type block struct {
	selectors []string
	decls     [][2]string
}

var (
	pageBlock = block{
		selectors: []string{"html", "body"},
		decls:     [][2]string{{"background", "transparent"}},
	}
	containerBlock = block{
		selectors: []string{".container", ".wrapper", ".main", ".content", "#main", "#content"},
		decls:     [][2]string{{"background", "transparent"}},
	}
	headerBlock = block{
		selectors: []string{"header", "nav", ".header", ".nav", ".navbar", ".navigation"},
		decls: [][2]string{
			{"background", "rgba(255, 255, 255, 0.1)"},
			{"backdrop-filter", "blur(10px)"},
		},
	}
	sidebarBlock = block{
		selectors: []string{".sidebar", ".side-nav", "aside"},
		decls: [][2]string{
			{"background", "rgba(255, 255, 255, 0.05)"},
			{"backdrop-filter", "blur(5px)"},
		},
	}
	footerBlock = block{
		selectors: []string{"footer", ".footer"},
		decls: [][2]string{
			{"background", "rgba(255, 255, 255, 0.05)"},
			{"backdrop-filter", "blur(5px)"},
		},
	}
)

// Stylesheet 构建通用样式表，disableFooter 时省略页脚规则
func Stylesheet(gs domain.GlobalSettings) *css.Stylesheet {
	blocks := []block{pageBlock, containerBlock, headerBlock, sidebarBlock}
	if !gs.DisableFooter {
		blocks = append(blocks, footerBlock)
	}

	sheet := css.NewStylesheet()
	for _, b := range blocks {
		sheet.Rules = append(sheet.Rules, b.rule())
	}
	return sheet
}

// Generate 生成带站点注释的通用样式文本
func Generate(host string, gs domain.GlobalSettings) string {
	var sb strings.Builder
	sb.WriteString("/* ZenInternet: Force styling for ")
	sb.WriteString(host)
	sb.WriteString(" */\n")
	sb.WriteString(Stylesheet(gs).String())
	sb.WriteString("\n")
	return sb.String()
}

func (b block) rule() *css.Rule {
	r := css.NewRule(css.QualifiedRule)
	r.Selectors = b.selectors
	r.Prelude = strings.Join(b.selectors, ", ")
	for _, d := range b.decls {
		r.Declarations = append(r.Declarations, &css.Declaration{
			Property:  d[0],
			Value:     d[1],
			Important: true,
		})
	}
	return r
}
