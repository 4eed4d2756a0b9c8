package injector

import (
	"encoding/json"
	"strconv"
)

// StyleElementID 注入的 <style> 元素 id
const StyleElementID = "zeninternet-custom-styles"

// ApplyScript 生成插入或替换样式元素的脚本，css 为空时生成移除脚本
func ApplyScript(css string) string {
	if css == "" {
		return RemoveScript()
	}
	lit, _ := json.Marshal(css)
	return `(function(){var id=` + strconv.Quote(StyleElementID) + `;var css=` + string(lit) + `;` +
		`var el=document.getElementById(id);` +
		`if(!el){el=document.createElement("style");el.id=id;` +
		`var root=document.head||document.documentElement;if(!root){return false;}root.appendChild(el);}` +
		`if(el.textContent!==css){el.textContent=css;}return true;})()`
}

// RemoveScript 生成移除样式元素的脚本
func RemoveScript() string {
	return `(function(){var el=document.getElementById(` + strconv.Quote(StyleElementID) + `);` +
		`if(el){el.remove();}return true;})()`
}
